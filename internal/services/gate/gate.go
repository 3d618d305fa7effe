// Package gate decides whether a feedback text is acceptable for a reward.
package gate

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"feedbackpay/internal/ports"
)

// ReasonEvaluationFailed is the reason given when the evaluator could not
// produce a usable answer.
const ReasonEvaluationFailed = "evaluation failed"

const instruction = "Evaluate the following feedback. Approve it only if it is relevant to the document it reviews, " +
	"at least 10 characters long, and contains no abusive or inappropriate content.\n\nFeedback:\n"

// Verdict is the outcome of an evaluation. Reason is empty when approved.
type Verdict struct {
	Approved bool
	Reason   string
}

type Gate struct {
	evaluator ports.Evaluator
	log       logrus.FieldLogger
}

func New(evaluator ports.Evaluator, log logrus.FieldLogger) *Gate {
	return &Gate{evaluator: evaluator, log: log}
}

// Evaluate never returns an error. Any evaluator failure, or an answer
// without the approved field, is a rejection.
func (g *Gate) Evaluate(ctx context.Context, text string) Verdict {
	ev, err := g.evaluator.Evaluate(ctx, instruction+text)
	if err != nil {
		g.log.WithError(err).Warn("content evaluation failed")
		return Verdict{Reason: ReasonEvaluationFailed}
	}
	if ev.Approved == nil {
		g.log.Warn("content evaluation returned no verdict")
		return Verdict{Reason: ReasonEvaluationFailed}
	}
	if *ev.Approved {
		return Verdict{Approved: true}
	}
	reason := strings.TrimSpace(ev.Reason)
	if reason == "" {
		reason = ReasonEvaluationFailed
	}
	return Verdict{Reason: reason}
}
