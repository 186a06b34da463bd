package strategy

import (
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// EncodeAmount builds the allocate/deallocate payload understood by
// MemoryStrategy: the amount as a decimal string.
func EncodeAmount(amount sdkmath.Int) []byte {
	return []byte(amount.String())
}

// DecodeAmount parses a payload produced by EncodeAmount.
func DecodeAmount(data []byte) (sdkmath.Int, error) {
	amount, ok := sdkmath.NewIntFromString(string(data))
	if !ok || amount.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("invalid amount payload %q", string(data))
	}
	return amount, nil
}

// Instruction is one entry of an allocation batch. ExtraData is passed to
// the adapter untouched.
type Instruction struct {
	IsDeposit bool      `json:"is_deposit"`
	Strategy  uuid.UUID `json:"strategy"`
	ExtraData []byte    `json:"extra_data"`
}

// EncodeBatch serialises a batch into the opaque payload carried by
// commands.
func EncodeBatch(batch []Instruction) ([]byte, error) {
	return json.Marshal(batch)
}

// DecodeBatch parses a payload produced by EncodeBatch.
func DecodeBatch(data []byte) ([]Instruction, error) {
	var batch []Instruction
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decode allocation batch: %w", err)
	}
	return batch, nil
}
