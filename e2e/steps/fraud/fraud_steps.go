package fraud

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &fraudSteps{tc: tc}

	ctx.Step(`^user "([^"]*)" submits a (\w+) of (\d+) IDR as transaction "([^"]*)"$`, s.score)
	ctx.Step(`^user "([^"]*)" submits a (\w+) of (\d+) IDR from IP "([^"]*)" as transaction "([^"]*)"$`, s.scoreFromIP)
	ctx.Step(`^user "([^"]*)" submits a batch of (\d+) transfers of (\d+) IDR with prefix "([^"]*)"$`, s.batch)
	ctx.Step(`^I fetch the score for transaction "([^"]*)"$`, s.fetch)
}

type fraudSteps struct {
	tc TestContext
}

func transaction(userID, typ, amount, txnID string) map[string]any {
	return map[string]any{
		"transactionId": txnID,
		"userId":        userID,
		"amount":        amount,
		"currency":      "IDR",
		"type":          typ,
	}
}

func (s *fraudSteps) score(_ context.Context, userID, typ, amount, txnID string) error {
	return s.tc.POST("/fraud/score", transaction(userID, typ, amount, txnID))
}

func (s *fraudSteps) scoreFromIP(_ context.Context, userID, typ, amount, ip, txnID string) error {
	body := transaction(userID, typ, amount, txnID)
	body["metadata"] = map[string]string{"ipAddress": ip, "userAgent": "identrisk-e2e"}
	return s.tc.POST("/fraud/score", body)
}

func (s *fraudSteps) batch(_ context.Context, userID string, n int, amount, prefix string) error {
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = transaction(userID, "transfer", amount, fmt.Sprintf("%s-%d", prefix, i))
	}
	return s.tc.POST("/fraud/score/batch", map[string]any{"transactions": items})
}

func (s *fraudSteps) fetch(_ context.Context, txnID string) error {
	return s.tc.GET("/fraud/score/" + txnID)
}
