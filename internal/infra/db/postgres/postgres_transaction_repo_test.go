//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/infra/security"
)

func seedTxn(t *testing.T, repo *transactionRepo, orderID string) *model.Transaction {
	t.Helper()
	txn := &model.Transaction{
		OrderID:  orderID,
		Amount:   199000,
		Currency: "VND",
		Gateway:  "momo",
		Status:   model.TransactionStatusPending,
		Context: model.PaymentContext{
			ProductType: model.CodeKindPremium,
			Email:       "u@x.com",
			NameCompany: "ACME",
			NationalID:  "001203004567",
		},
	}
	if err := repo.Create(context.Background(), nil, txn); err != nil {
		t.Fatalf("create: %v", err)
	}
	return txn
}

func seedCode(t *testing.T, code string) *model.Code {
	t.Helper()
	c := &model.Code{Code: code, Kind: model.CodeKindPremium}
	if err := NewCodeRepo(testPool).Create(context.Background(), nil, c); err != nil {
		t.Fatalf("create code: %v", err)
	}
	return c
}

func TestTransactionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	enc, err := security.NewEncryptionService("0123456789abcdef0123456789abcdef", "transactions.payment_context")
	if err != nil {
		t.Fatalf("encryption: %v", err)
	}
	repo := NewTransactionRepo(testPool, enc)

	t.Run("order id is unique and context round-trips encrypted", func(t *testing.T) {
		cleanup(t)
		seedTxn(t, repo, "ORD1")
		if err := repo.Create(ctx, nil, &model.Transaction{OrderID: "ORD1", Gateway: "momo"}); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("want ErrAlreadyExists, got %v", err)
		}

		var raw string
		if err := testPool.QueryRow(ctx, `SELECT payment_data FROM transactions WHERE order_id = 'ORD1'`).Scan(&raw); err != nil {
			t.Fatalf("raw read: %v", err)
		}
		if raw == "" || raw[0] == '{' {
			t.Fatalf("payment data stored in clear: %q", raw)
		}

		got, err := repo.FindByOrderID(ctx, nil, "ORD1")
		if err != nil || got.Context.NationalID != "001203004567" {
			t.Fatalf("FindByOrderID: %+v %v", got, err)
		}
	})

	t.Run("update status keeps absent fields", func(t *testing.T) {
		cleanup(t)
		seedTxn(t, repo, "ORD2")
		txnID, rc := "T1", "0"
		if _, err := repo.UpdateStatus(ctx, nil, "ORD2", model.TransactionStatusSuccess, model.CallbackUpdate{GatewayTxnID: &txnID, ResultCode: &rc}); err != nil {
			t.Fatalf("update: %v", err)
		}
		msg := "late"
		got, err := repo.UpdateStatus(ctx, nil, "ORD2", model.TransactionStatusSuccess, model.CallbackUpdate{Message: &msg})
		if err != nil {
			t.Fatalf("update 2: %v", err)
		}
		if got.GatewayTxnID == nil || *got.GatewayTxnID != "T1" || got.Message == nil || *got.Message != "late" {
			t.Fatalf("partial update lost fields: %+v", got)
		}
		if _, err := repo.UpdateStatus(ctx, nil, "NOPE", model.TransactionStatusFailed, model.CallbackUpdate{}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("success is never overwritten", func(t *testing.T) {
		cleanup(t)
		seedTxn(t, repo, "ORD6")
		if _, err := repo.UpdateStatus(ctx, nil, "ORD6", model.TransactionStatusSuccess, model.CallbackUpdate{}); err != nil {
			t.Fatalf("success: %v", err)
		}
		rc := "1006"
		for _, status := range []model.TransactionStatus{model.TransactionStatusCancelled, model.TransactionStatusFailed, model.TransactionStatusPending} {
			if _, err := repo.UpdateStatus(ctx, nil, "ORD6", status, model.CallbackUpdate{ResultCode: &rc}); !errors.Is(err, domain.ErrInvalidState) {
				t.Fatalf("%s over success: want ErrInvalidState, got %v", status, err)
			}
		}
		got, _ := repo.FindByOrderID(ctx, nil, "ORD6")
		if got.Status != model.TransactionStatusSuccess || got.ResultCode != nil {
			t.Fatalf("refused update leaked into the row: %+v", got)
		}
	})

	t.Run("concurrent link-if-absent has exactly one winner", func(t *testing.T) {
		cleanup(t)
		seedTxn(t, repo, "ORD3")
		codes := make([]*model.Code, 8)
		for i := range codes {
			codes[i] = seedCode(t, "RACE-"+string(rune('A'+i)))
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
			linked  = map[string]bool{}
		)
		for _, c := range codes {
			wg.Add(1)
			go func(codeID string) {
				defer wg.Done()
				got, ok, err := repo.LinkCodeIfAbsent(ctx, nil, "ORD3", codeID)
				if err != nil {
					t.Errorf("link: %v", err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if ok {
					winners++
				}
				linked[*got.CodeID] = true
			}(c.ID)
		}
		wg.Wait()

		if winners != 1 || len(linked) != 1 {
			t.Fatalf("want one winner and one linked code, got winners=%d linked=%v", winners, linked)
		}
	})

	t.Run("issuance claim is exclusive until released or expired", func(t *testing.T) {
		cleanup(t)
		seedTxn(t, repo, "ORD4")

		ok, err := repo.ClaimIssuance(ctx, nil, "ORD4", "a", time.Minute)
		if err != nil || !ok {
			t.Fatalf("first claim: ok=%v err=%v", ok, err)
		}
		if ok, _ := repo.ClaimIssuance(ctx, nil, "ORD4", "b", time.Minute); ok {
			t.Fatalf("second claim must fail while the lease holds")
		}
		if err := repo.ReleaseIssuance(ctx, nil, "ORD4", "a"); err != nil {
			t.Fatalf("release: %v", err)
		}
		if ok, _ := repo.ClaimIssuance(ctx, nil, "ORD4", "b", time.Millisecond); !ok {
			t.Fatalf("claim after release should win")
		}
		time.Sleep(20 * time.Millisecond)
		if ok, _ := repo.ClaimIssuance(ctx, nil, "ORD4", "c", time.Minute); !ok {
			t.Fatalf("expired lease should be taken over")
		}

		c := seedCode(t, "LINKED")
		if _, err := repo.LinkCode(ctx, nil, "ORD4", c.ID); err != nil {
			t.Fatalf("link: %v", err)
		}
		if err := repo.ReleaseIssuance(ctx, nil, "ORD4", "c"); err != nil {
			t.Fatalf("release: %v", err)
		}
		if ok, _ := repo.ClaimIssuance(ctx, nil, "ORD4", "d", time.Minute); ok {
			t.Fatalf("linked order must not be claimable")
		}
	})
}
