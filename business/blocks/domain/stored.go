package domain

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/fd1az/blockviz/internal/apperror"
)

// StoredBlock is the storage form of a Block. Numeric fields are decimal
// strings so values up to 2^256-1 survive JSON round trips.
type StoredBlock struct {
	Number           string          `json:"number"`
	Hash             string          `json:"hash,omitempty"`
	ParentHash       string          `json:"parentHash"`
	Timestamp        string          `json:"timestamp"`
	GasUsed          string          `json:"gasUsed,omitempty"`
	GasLimit         string          `json:"gasLimit,omitempty"`
	BaseFeePerGas    string          `json:"baseFeePerGas,omitempty"`
	TransactionCount uint64          `json:"transactionCount"`
	L1Origin         *StoredL1Origin `json:"l1Origin,omitempty"`
}

// StoredL1Origin is the storage form of L1Origin.
type StoredL1Origin struct {
	Number    string `json:"l1Number"`
	Hash      string `json:"l1Hash"`
	Timestamp string `json:"l1Timestamp"`
}

// ToStored converts b to storage form. It fails with CodeInvalidBlock when a
// big.Int field is negative or wider than 256 bits.
func ToStored(b Block) (StoredBlock, error) {
	gasUsed, err := encodeU256("gasUsed", b.GasUsed)
	if err != nil {
		return StoredBlock{}, err
	}
	gasLimit, err := encodeU256("gasLimit", b.GasLimit)
	if err != nil {
		return StoredBlock{}, err
	}
	baseFee, err := encodeU256("baseFeePerGas", b.BaseFeePerGas)
	if err != nil {
		return StoredBlock{}, err
	}

	s := StoredBlock{
		Number:           strconv.FormatUint(b.Number, 10),
		ParentHash:       b.ParentHash.Hex(),
		Timestamp:        strconv.FormatUint(b.TimestampMs, 10),
		GasUsed:          gasUsed,
		GasLimit:         gasLimit,
		BaseFeePerGas:    baseFee,
		TransactionCount: b.TxCount,
		L1Origin:         StoreL1Origin(b.L1Origin),
	}
	if b.Hash != (common.Hash{}) {
		s.Hash = b.Hash.Hex()
	}
	return s, nil
}

// StoreL1Origin converts o to storage form; nil stays nil.
func StoreL1Origin(o *L1Origin) *StoredL1Origin {
	if o == nil {
		return nil
	}
	return &StoredL1Origin{
		Number:    strconv.FormatUint(o.Number, 10),
		Hash:      o.Hash.Hex(),
		Timestamp: strconv.FormatUint(o.TimestampMs, 10),
	}
}

// ToBlock converts s back to wire form.
func (s StoredBlock) ToBlock() (Block, error) {
	number, err := s.BlockNumber()
	if err != nil {
		return Block{}, err
	}
	ts, err := decodeUint64("timestamp", s.Timestamp)
	if err != nil {
		return Block{}, err
	}

	b := Block{
		Number:      number,
		Hash:        common.HexToHash(s.Hash),
		ParentHash:  common.HexToHash(s.ParentHash),
		TimestampMs: ts,
		TxCount:     s.TransactionCount,
	}
	if b.GasUsed, err = decodeU256("gasUsed", s.GasUsed); err != nil {
		return Block{}, err
	}
	if b.GasLimit, err = decodeU256("gasLimit", s.GasLimit); err != nil {
		return Block{}, err
	}
	if b.BaseFeePerGas, err = decodeU256("baseFeePerGas", s.BaseFeePerGas); err != nil {
		return Block{}, err
	}
	if s.L1Origin != nil {
		origin, err := s.L1Origin.ToL1Origin()
		if err != nil {
			return Block{}, err
		}
		b.L1Origin = &origin
	}
	return b, nil
}

// ToL1Origin converts o back to wire form.
func (o StoredL1Origin) ToL1Origin() (L1Origin, error) {
	n, err := decodeUint64("l1Number", o.Number)
	if err != nil {
		return L1Origin{}, err
	}
	ts, err := decodeUint64("l1Timestamp", o.Timestamp)
	if err != nil {
		return L1Origin{}, err
	}
	return L1Origin{Number: n, Hash: common.HexToHash(o.Hash), TimestampMs: ts}, nil
}

// BlockNumber parses the stored block number.
func (s StoredBlock) BlockNumber() (uint64, error) {
	return decodeUint64("number", s.Number)
}

// Key mirrors Block.Key for stored blocks.
func (s StoredBlock) Key() string {
	if s.Hash == "" {
		return "#" + s.Number
	}
	return common.HexToHash(s.Hash).Hex()
}

func encodeU256(field string, v *big.Int) (string, error) {
	if v == nil {
		return "", nil
	}
	if v.Sign() < 0 {
		return "", invalidBlock(field, fmt.Errorf("negative value %s", v))
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return "", invalidBlock(field, fmt.Errorf("value exceeds 256 bits"))
	}
	return u.Dec(), nil
}

func decodeU256(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	u, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, invalidBlock(field, err)
	}
	return u.ToBig(), nil
}

func decodeUint64(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, invalidBlock(field, err)
	}
	return v, nil
}

func invalidBlock(field string, cause error) error {
	return apperror.New(apperror.CodeInvalidBlock, apperror.WithCause(cause), apperror.WithContext(field))
}
