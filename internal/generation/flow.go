package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lumeo-ai/studio/internal/models"
)

var (
	ErrEmptyPrompt         = errors.New("prompt cannot be empty")
	ErrInsufficientCredits = errors.New("insufficient credits, purchase required")
	ErrInvalidMode         = errors.New("mode does not accept submissions")
	ErrTooManyFiles        = errors.New("too many input files")
)

// editInstruction is prepended so the model treats the request as an in-place
// edit of the provided base image rather than a fresh generation.
const editInstruction = "EDIT IMAGE: "

// Refresher re-reads remote state after a mutating action. The session
// store implements it as the single producer of cached profile/history
// snapshots.
type Refresher interface {
	Refresh(ctx context.Context, accessToken, userID string)
}

// Input is one submission from the form: the ephemeral in-flight request.
type Input struct {
	Mode        models.Mode
	Prompt      string
	AspectRatio string
	Files       []models.Attachment
	// PriorResultURL is the currently displayed result, if any. It both
	// drives editing-context inference and serves as the edit base image.
	PriorResultURL string
}

// Submission is the pre-dispatch assessment of an Input.
type Submission struct {
	Cost           int
	EditingContext bool
}

// Flow orchestrates the generation request lifecycle: validate, prepare the
// edit context, rewrite the prompt, dispatch, reconcile.
type Flow struct {
	log       *slog.Logger
	api       *Client
	refresher Refresher
	fetcher   *http.Client
}

func NewFlow(log *slog.Logger, api *Client, refresher Refresher) *Flow {
	return &Flow{
		log:       log,
		api:       api,
		refresher: refresher,
		fetcher:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Assess validates an input against the current balance without sending
// anything. An empty prompt and an unaffordable cost both block dispatch.
func (f *Flow) Assess(input Input, balance int) (Submission, error) {
	if input.Mode != models.ModeImage && input.Mode != models.ModeVideo {
		return Submission{}, ErrInvalidMode
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return Submission{}, ErrEmptyPrompt
	}
	switch input.Mode {
	case models.ModeImage:
		if len(input.Files) > MaxImageFiles {
			return Submission{}, ErrTooManyFiles
		}
	case models.ModeVideo:
		if len(input.Files) > MaxVideoFiles {
			return Submission{}, ErrTooManyFiles
		}
	}

	editing := EditingContext(input.Mode, input.PriorResultURL != "", len(input.Files))
	sub := Submission{
		Cost:           Cost(input.Mode, len(input.Files), editing),
		EditingContext: editing,
	}
	if balance < sub.Cost {
		return sub, ErrInsufficientCredits
	}
	return sub, nil
}

// Execute dispatches an already assessed input and returns the media URL.
// On success the profile and history are re-fetched fire-and-forget so the
// caller's next read reflects the server-side debit.
func (f *Flow) Execute(ctx context.Context, accessToken, userID string, input Input, sub Submission) (string, error) {
	prompt := input.Prompt
	if sub.EditingContext {
		prompt = editInstruction + prompt
	}

	var url string
	var err error
	switch input.Mode {
	case models.ModeImage:
		req := ImageRequest{
			UserID:      userID,
			Prompt:      prompt,
			AspectRatio: input.AspectRatio,
			Files:       input.Files,
		}
		if sub.EditingContext {
			// A failed base-image fetch degrades to generating from
			// scratch instead of failing the whole request.
			if data, fetchErr := f.fetchAsDataString(ctx, input.PriorResultURL); fetchErr != nil {
				f.log.Warn("edit base image unavailable, generating without it", "err", fetchErr)
			} else {
				req.FromImage = data
			}
		}
		url, err = f.api.GenerateImage(ctx, req)
	case models.ModeVideo:
		req := VideoRequest{
			UserID:      userID,
			Prompt:      prompt,
			AspectRatio: input.AspectRatio,
		}
		if len(input.Files) > 0 {
			frame := input.Files[0]
			req.StartFrame = &frame
		}
		url, err = f.api.GenerateVideo(ctx, req)
	default:
		return "", ErrInvalidMode
	}
	if err != nil {
		return "", err
	}

	f.refetchAsync(accessToken, userID)
	return url, nil
}

// FetchStartFrame downloads a prior image result for re-use as the single
// start frame of a video generation ("animate").
func (f *Flow) FetchStartFrame(ctx context.Context, url string) (*models.Attachment, error) {
	data, contentType, err := f.fetchMedia(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch start frame: %w", err)
	}
	return &models.Attachment{
		Name:        "base.jpg",
		ContentType: contentType,
		Data:        data,
	}, nil
}

// UserMessage maps a dispatch error to the text shown to the user: the
// server's detail when present, a generic fallback otherwise.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return "Something went wrong while processing your request."
}

// fetchAsDataString downloads a media URL and re-encodes it as a base64 data
// string, the shape the backend expects for the from_image field.
func (f *Flow) fetchAsDataString(ctx context.Context, url string) (string, error) {
	data, contentType, err := f.fetchMedia(ctx, url)
	if err != nil {
		return "", err
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (f *Flow) fetchMedia(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	resp, err := f.fetcher.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("media fetch status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

// refetchAsync reconciles cached profile and history after the server-side
// debit. Fire-and-forget; a failed read just leaves the next explicit fetch
// to catch up.
func (f *Flow) refetchAsync(accessToken, userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		f.refresher.Refresh(ctx, accessToken, userID)
	}()
}
