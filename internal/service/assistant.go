package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/smartcity/racc-dashboard/internal/domain"
)

// FallbackAnswer is returned when the assistant cannot be reached
const FallbackAnswer = "Lo siento, ha ocurrido un error al procesar tu pregunta. Por favor, intenta de nuevo."

// ErrInvalidQuestion is returned for empty or oversized questions
var ErrInvalidQuestion = errors.New("invalid question")

// Assistant forwards questions to the remote document assistant
type Assistant struct {
	client   *APIClient
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAssistant creates a new assistant bridge
func NewAssistant(client *APIClient, logger *slog.Logger) *Assistant {
	return &Assistant{
		client:   client,
		validate: validator.New(),
		logger:   logger.With("component", "assistant"),
	}
}

// Ask validates the question and returns the assistant's answer. Remote
// failures are not errors: they yield the fallback answer.
func (a *Assistant) Ask(ctx context.Context, req domain.AskRequest) (domain.AskResponse, error) {
	req.Question = strings.TrimSpace(req.Question)
	if req.FileType == "all" {
		req.FileType = ""
	}
	if err := a.validate.Struct(req); err != nil {
		return domain.AskResponse{}, fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
	}

	resp, err := a.client.Ask(ctx, req)
	if err != nil {
		a.logger.Warn("Assistant request failed", "error", err)
		return domain.AskResponse{Answer: FallbackAnswer, Fallback: true}, nil
	}
	return resp, nil
}
