package whirlpool

import "github.com/gagliardetto/solana-go"

// Whirlpool (Orca) program IDs
const (
	// WHIRLPOOL_PROGRAM_ID is the Orca Whirlpool CLMM program
	WHIRLPOOL_PROGRAM_ID = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
)

var (
	WhirlpoolProgramID = solana.MustPublicKeyFromBase58(WHIRLPOOL_PROGRAM_ID)
)

// Account discriminators, sha256("account:<Name>")[:8]
var (
	WhirlpoolDiscriminator = [8]byte{63, 149, 209, 12, 225, 128, 99, 9}
	TickArrayDiscriminator = [8]byte{69, 97, 189, 190, 110, 7, 66, 187}
)

// Account sizes
const (
	WHIRLPOOL_SIZE  = 653
	TICK_SIZE       = 113
	TICK_ARRAY_SIZE = 8 + 4 + TICK_ARRAY_LEN*TICK_SIZE + 32
	TICK_ARRAY_LEN  = 88
	REWARD_INFO_LEN = 3
)

// Mint offsets inside a whirlpool account, used by getProgramAccounts memcmp filters
const (
	TOKEN_MINT_A_OFFSET = 101
	TOKEN_MINT_B_OFFSET = 181
)

// Seeds
const (
	TICK_ARRAY_SEED = "tick_array"
)

// TICK_ARRAYS_PER_SWAP is how many tick arrays one swap instruction can walk
const TICK_ARRAYS_PER_SWAP = 3
