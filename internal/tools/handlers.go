package tools

import (
	"context"
	"fmt"
	"strings"

	"digitaltwin/internal/llm"
	"digitaltwin/pkg/twintypes"
)

// NotProvided replaces omitted optional arguments in notification bodies.
const NotProvided = "not provided"

// Tool names as declared to the model.
const (
	RecordUserDetailsName     = "record_user_details"
	RecordUnknownQuestionName = "record_unknown_question"
	ShareResumeName           = "share_resume"
)

// AttachmentFetcher downloads a document to attach to a notification.
type AttachmentFetcher func(ctx context.Context, url string) (twintypes.Attachment, error)

type userDetailsArgs struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

type unknownQuestionArgs struct {
	Question string `json:"question"`
}

type shareResumeArgs struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// RecordUserDetails notifies the owner that a visitor wants to stay in touch.
func RecordUserDetails(notifier twintypes.Notifier) Tool {
	return Tool{
		Spec: llm.ToolSpec{
			Name:        RecordUserDetailsName,
			Description: "Sends an email if the user is interested to connect and has provided an email address",
			Parameters: llm.Object(map[string]*llm.Schema{
				"email": llm.String("The email address of this user"),
				"name":  llm.String("The user's name, if they provided it"),
				"notes": llm.String("Any additional information about the conversation that's worth recording to give context"),
			}, "email"),
		},
		Handler: func(ctx context.Context, arguments string) (string, error) {
			var args userDetailsArgs
			if err := decodeArgs(RecordUserDetailsName, arguments, &args); err != nil {
				return "", err
			}
			if strings.TrimSpace(args.Email) == "" {
				return "", fmt.Errorf("%s requires an email", RecordUserDetailsName)
			}

			body := fmt.Sprintf("Recording interest from\nName: %s,\nEmail: %s,\nNotes: %s",
				orNotProvided(args.Name), args.Email, orNotProvided(args.Notes))
			if err := notifier.Send(ctx, twintypes.Notification{Body: body}); err != nil {
				return "", fmt.Errorf("failed to record user details: %w", err)
			}
			return Ack, nil
		},
	}
}

// RecordUnknownQuestion notifies the owner about a question the twin could not answer.
func RecordUnknownQuestion(notifier twintypes.Notifier) Tool {
	return Tool{
		Spec: llm.ToolSpec{
			Name:        RecordUnknownQuestionName,
			Description: "Record any question that couldn't be answered as you didn't know the answer",
			Parameters: llm.Object(map[string]*llm.Schema{
				"question": llm.String("The question that couldn't be answered"),
			}, "question"),
		},
		Handler: func(ctx context.Context, arguments string) (string, error) {
			var args unknownQuestionArgs
			if err := decodeArgs(RecordUnknownQuestionName, arguments, &args); err != nil {
				return "", err
			}

			body := "Recording question that was asked but I couldn't answer.\n" +
				fmt.Sprintf("Question: %s", args.Question)
			if err := notifier.Send(ctx, twintypes.Notification{Body: body}); err != nil {
				return "", fmt.Errorf("failed to record unknown question: %w", err)
			}
			return Ack, nil
		},
	}
}

// ShareResume emails the resume document to the visitor.
func ShareResume(notifier twintypes.Notifier, resumeURL string, fetch AttachmentFetcher) Tool {
	return Tool{
		Spec: llm.ToolSpec{
			Name:        ShareResumeName,
			Description: "Email the resume to a user who explicitly asked to receive it and provided an email address",
			Parameters: llm.Object(map[string]*llm.Schema{
				"email": llm.String("The email address to send the resume to"),
				"name":  llm.String("The user's name, if they provided it"),
			}, "email"),
		},
		Handler: func(ctx context.Context, arguments string) (string, error) {
			var args shareResumeArgs
			if err := decodeArgs(ShareResumeName, arguments, &args); err != nil {
				return "", err
			}
			if strings.TrimSpace(args.Email) == "" {
				return "", fmt.Errorf("%s requires an email", ShareResumeName)
			}

			attachment, err := fetch(ctx, resumeURL)
			if err != nil {
				return "", fmt.Errorf("failed to fetch resume: %w", err)
			}

			greeting := "Hello"
			if args.Name != "" {
				greeting += " " + args.Name
			}
			err = notifier.Send(ctx, twintypes.Notification{
				Subject:     "Requested resume",
				Body:        greeting + ",\n\nAs requested, the resume is attached.",
				Recipient:   args.Email,
				Attachments: []twintypes.Attachment{attachment},
			})
			if err != nil {
				return "", fmt.Errorf("failed to share resume: %w", err)
			}
			return Ack, nil
		},
	}
}

func orNotProvided(value string) string {
	if value == "" {
		return NotProvided
	}
	return value
}
