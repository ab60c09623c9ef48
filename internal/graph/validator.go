package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/elvinasadov/agroflow/pkg/domain"
)

const (
	greetingResponse = "Salam! Mən aqronomiya üzrə köməkçinizəm. Suvarma, gübrələmə, " +
		"zərərvericilər və hava barədə soruşa, ferma məlumatlarınızı sorğulaya " +
		"və ya bitki şəkli göndərə bilərsiniz."

	offTopicResponse = "Bu mövzuda kömək edə bilmirəm. Mən yalnız fermaçılıq suallarına " +
		"cavab verirəm: suvarma, gübrələmə, zərərvericilər, hava və ferma məlumatları."

	apologyResponse = "Üzr istəyirəm, sorğunuzu emal edərkən xəta baş verdi. " +
		"Zəhmət olmasa bir az fərqli şəkildə yenidən cəhd edin."
)

// Validator is the single convergence point of the graph. It normalizes
// whatever response or error is present into the final user-visible message,
// appends the turn to the conversation history, and is the only node
// permitted to clear the error after converting it into an apology.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates the terminal node.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// Name implements Node.
func (v *Validator) Name() string { return NodeValidator }

// Run implements Node.
func (v *Validator) Run(ctx context.Context, st *domain.ExecutionState, _ Overrides) (domain.Delta, error) {
	// A failed turn may arrive without an intent (the supervisor itself is
	// the one that can fail before classification); it still deserves an
	// apology. Only a clean turn with no intent is a routing bug.
	if st.Intent == "" && !st.Failed() {
		return domain.Delta{}, fmt.Errorf("validator reached with no intent set")
	}

	final, clear := v.finalMessage(st)

	return domain.Delta{
		Response:   &final,
		ClearError: clear,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: st.CurrentInput},
			{Role: domain.RoleAssistant, Content: final},
		},
	}, nil
}

func (v *Validator) finalMessage(st *domain.ExecutionState) (string, bool) {
	if st.Failed() {
		v.logger.Info("turn failed, responding with apology",
			"thread_id", st.ThreadID,
			"node", st.ErrorNode,
			"err", st.Error,
		)
		return apologyResponse, true
	}

	if st.CurrentResponse != "" {
		return st.CurrentResponse, false
	}

	switch st.Intent {
	case domain.IntentGreeting:
		return greetingResponse, false
	default:
		return offTopicResponse, false
	}
}
