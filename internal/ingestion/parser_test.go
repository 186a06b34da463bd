package ingestion_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"StrategyVault/internal/command"
	"StrategyVault/internal/ingestion"
)

const (
	aliceID    = "00000000-0000-4000-8000-000000000002"
	bobID      = "00000000-0000-4000-8000-000000000003"
	strategyID = "00000000-0000-4000-8000-0000000000b1"
)

func rawFromJSON(t *testing.T, subject string, v interface{}) ingestion.RawCommand {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawCommand{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
		TermFunc:  func() {},
	}
}

func TestParseDeposit(t *testing.T) {
	body := map[string]interface{}{
		"key":             "dep-1",
		"source":          "frontend",
		"source_sequence": int64(7),
		"caller":          aliceID,
		"payload": map[string]interface{}{
			"assets":   "1000000",
			"receiver": bobID,
		},
	}

	cmd, err := ingestion.ParseCommand(rawFromJSON(t, "vault.cmd.deposit.frontend", body), "")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cmd.Type != command.TypeDeposit {
		t.Errorf("type: got %s, want deposit", cmd.Type)
	}
	if cmd.Key != "dep-1" || cmd.Source != "frontend" || cmd.SourceSequence != 7 {
		t.Errorf("envelope: got key=%s source=%s seq=%d", cmd.Key, cmd.Source, cmd.SourceSequence)
	}
	if cmd.Caller.String() != aliceID {
		t.Errorf("caller: got %s, want %s", cmd.Caller, aliceID)
	}

	p, ok := cmd.Payload.(*command.DepositPayload)
	if !ok {
		t.Fatalf("expected *command.DepositPayload, got %T", cmd.Payload)
	}
	if p.Assets.Int64() != 1_000_000 {
		t.Errorf("assets: got %s, want 1000000", p.Assets)
	}
	if p.Receiver.String() != bobID {
		t.Errorf("receiver: got %s, want %s", p.Receiver, bobID)
	}
}

func TestParseAllocateFunds(t *testing.T) {
	body := map[string]interface{}{
		"key":    "alloc-1",
		"caller": aliceID,
		"payload": map[string]interface{}{
			"instructions": []map[string]interface{}{
				{"is_deposit": true, "strategy": strategyID},
			},
		},
	}

	cmd, err := ingestion.ParseCommand(rawFromJSON(t, "vault.cmd.allocate_funds", body), "")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	p, ok := cmd.Payload.(*command.AllocateFundsPayload)
	if !ok {
		t.Fatalf("expected *command.AllocateFundsPayload, got %T", cmd.Payload)
	}
	if len(p.Instructions) != 1 || p.Instructions[0].Strategy.String() != strategyID {
		t.Errorf("instructions: got %+v", p.Instructions)
	}
	if cmd.Source != "" {
		t.Errorf("source: got %q, want empty", cmd.Source)
	}
}

func TestParseClaimWithdrawal(t *testing.T) {
	body := map[string]interface{}{
		"key":     "claim-1",
		"caller":  aliceID,
		"payload": map[string]interface{}{"epoch_ids": []uint64{1, 2}},
	}

	cmd, err := ingestion.ParseCommand(rawFromJSON(t, "vault.cmd.claim_withdrawal.web", body), "")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	p := cmd.Payload.(*command.ClaimPayload)
	if len(p.EpochIDs) != 2 || p.EpochIDs[1] != 2 {
		t.Errorf("epoch ids: got %v, want [1 2]", p.EpochIDs)
	}
}

func TestParseEmptyPayload(t *testing.T) {
	body := map[string]interface{}{"key": "close-1", "caller": aliceID}

	cmd, err := ingestion.ParseCommand(rawFromJSON(t, "vault.cmd.close_epoch", body), "")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, ok := cmd.Payload.(*command.EmptyPayload); !ok {
		t.Fatalf("expected *command.EmptyPayload, got %T", cmd.Payload)
	}
}

func TestParseTypeOverride(t *testing.T) {
	body := map[string]interface{}{"key": "k", "caller": aliceID}

	cmd, err := ingestion.ParseCommand(rawFromJSON(t, "anything", body), "accrue_yield")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Type != command.TypeAccrueYield {
		t.Errorf("type: got %s, want accrue_yield", cmd.Type)
	}
}

func TestParseRejects(t *testing.T) {
	valid := map[string]interface{}{
		"key":     "k",
		"caller":  aliceID,
		"payload": map[string]interface{}{"assets": "10", "receiver": aliceID},
	}

	cases := []struct {
		name    string
		subject string
		body    map[string]interface{}
	}{
		{"unknown type", "vault.cmd.flash_loan", valid},
		{"foreign subject", "orders.fills", valid},
		{"missing key", "vault.cmd.deposit", map[string]interface{}{"caller": aliceID, "payload": valid["payload"]}},
		{"bad caller", "vault.cmd.deposit", map[string]interface{}{"key": "k", "caller": "nope", "payload": valid["payload"]}},
		{"type mismatch", "vault.cmd.deposit", map[string]interface{}{"type": "mint", "key": "k", "caller": aliceID, "payload": valid["payload"]}},
		{"negative amount", "vault.cmd.deposit", map[string]interface{}{
			"key": "k", "caller": aliceID,
			"payload": map[string]interface{}{"assets": "-1", "receiver": aliceID},
		}},
		{"sequence without source", "vault.cmd.deposit", map[string]interface{}{
			"key": "k", "caller": aliceID, "source_sequence": 3, "payload": valid["payload"],
		}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ingestion.ParseCommand(rawFromJSON(t, tc.subject, tc.body), ""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseMissingKeyIsTyped(t *testing.T) {
	body := map[string]interface{}{"caller": aliceID}
	_, err := ingestion.ParseCommand(rawFromJSON(t, "vault.cmd.toggle_queue", body), "")
	if !errors.Is(err, command.ErrMissingKey) {
		t.Errorf("got %v, want ErrMissingKey", err)
	}
}

func TestCommandTypeFromSubject(t *testing.T) {
	for _, typ := range command.AllTypes {
		got, err := ingestion.CommandTypeFromSubject("vault.cmd." + string(typ) + ".src")
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if got != typ {
			t.Errorf("got %s, want %s", got, typ)
		}
	}
}
