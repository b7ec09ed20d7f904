package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func malformed(err error) error {
	return &DecodeError{Kind: ErrMalformed, Err: err}
}

// Decode parses snapshot bytes. A schema version newer than SchemaVersion is
// rejected with ErrUnsupportedVersion before any record is looked at.
func Decode(data []byte) (*Snapshot, error) {
	var header struct {
		SchemaVersion *int `json:"schemaVersion"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, malformed(err)
	}
	if header.SchemaVersion == nil {
		return nil, malformed(errors.New("missing schemaVersion"))
	}
	v := *header.SchemaVersion
	if v > SchemaVersion {
		return nil, &DecodeError{Kind: ErrUnsupportedVersion, Version: v}
	}
	if v < 1 {
		return nil, malformed(fmt.Errorf("invalid schemaVersion %d", v))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var s Snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, malformed(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, malformed(errors.New("trailing data after snapshot"))
	}
	if err := validate.Struct(&s); err != nil {
		return nil, malformed(err)
	}
	if err := s.checkKeys(); err != nil {
		return nil, malformed(err)
	}
	return &s, nil
}

func (s *Snapshot) checkKeys() error {
	check := func(kind string, keys []string) error {
		seen := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				return fmt.Errorf("duplicate %s key %s", kind, k)
			}
			seen[k] = struct{}{}
		}
		return nil
	}
	return errors.Join(
		check(kindCategory, keysOf(s.Categories, func(r CategoryRecord) string { return r.Key })),
		check(kindFolder, keysOf(s.Folders, func(r FolderRecord) string { return r.Key })),
		check(kindAsset, keysOf(s.Assets, func(r AssetRecord) string { return r.Key })),
		check(kindWallet, keysOf(s.Wallets, func(r WalletRecord) string { return r.Key })),
		check(kindTransaction, keysOf(s.Transactions, func(r TransactionRecord) string { return r.Key })),
		check(kindRecurringRule, keysOf(s.RecurringRules, func(r RecurringRuleRecord) string { return r.Key })),
		check(kindBudget, keysOf(s.Budgets, func(r BudgetRecord) string { return r.Key })),
	)
}

func keysOf[R any](recs []R, key func(R) string) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = key(r)
	}
	return out
}
