// Copyright 2025 Arogya Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/arogyaplus/arogya-assistant/internal/analysis"
	"github.com/arogyaplus/arogya-assistant/internal/history"
	"github.com/arogyaplus/arogya-assistant/internal/progress"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSymptomsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "symptoms TEXT",
		Short: "Analyze a description of symptoms",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runText(cmd, opts, analysis.KindSymptom, strings.Join(args, " "))
		},
	}
}

func newConditionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conditions TEXT",
		Short: "Suggest possible conditions for the symptoms",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runText(cmd, opts, analysis.KindConditions, strings.Join(args, " "))
		},
	}
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report FILE|-",
		Short: "Interpret the extracted text of a medical report",
		Long:  "Interpret the text of a medical report read from FILE, or from standard input when FILE is -.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return runText(cmd, opts, analysis.KindReport, text)
		},
	}
}

func newImageCmd(opts *rootOptions) *cobra.Command {
	var imagePath string

	cmd := &cobra.Command{
		Use:   "image --file PATH TEXT",
		Short: "Ask a question about a medical image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			a, err := newApp(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			env, err := a.runAnalysis(cmd.Context(), analysis.Request{
				Kind: analysis.KindImage,
				Text: strings.Join(args, " "),
				Image: &analysis.Image{
					Name: filepath.Base(imagePath),
					Data: data,
				},
			})
			if err != nil {
				return err
			}
			return a.printEnvelope(env, opts.jsonOutput)
		},
	}
	cmd.Flags().StringVar(&imagePath, "file", "", "path to the image file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "chat TEXT",
		Short: "Send a message to the health chat assistant",
		Long: "Send a message to the health chat assistant. Pass --conversation to " +
			"continue a saved conversation; a new id is printed otherwise.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := analysis.ParseLanguage(opts.language)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			store, err := history.New(cmd.Context(), historyConfig(a.cfg), a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if conversationID == "" {
				conversationID = history.NewConversationID()
			}

			env, err := a.chat(cmd.Context(), store, conversationID, strings.Join(args, " "), lang)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.errOut, "Conversation: %s\n", conversationID)
			return a.printEnvelope(env, opts.jsonOutput)
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id to continue")
	return cmd
}

func runText(cmd *cobra.Command, opts *rootOptions, kind analysis.Kind, text string) error {
	lang, err := analysis.ParseLanguage(opts.language)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	env, err := a.runAnalysis(cmd.Context(), analysis.Request{Kind: kind, Text: text, Language: lang})
	if err != nil {
		return err
	}
	return a.printEnvelope(env, opts.jsonOutput)
}

// chat runs one chat turn against the stored conversation. Live replies are
// saved; sample replies are not.
func (a *app) chat(ctx context.Context, store history.Store, conversationID, text string, lang analysis.Language) (analysis.Envelope, error) {
	if err := history.ValidateConversationID(conversationID); err != nil {
		return analysis.Envelope{}, err
	}

	turns, err := store.Load(ctx, conversationID)
	if err != nil {
		return analysis.Envelope{}, fmt.Errorf("failed to load conversation: %w", err)
	}

	env, err := a.runAnalysis(ctx, analysis.Request{
		Kind:     analysis.KindChat,
		Text:     text,
		Language: lang,
		History:  turns,
	})
	if err != nil {
		return env, err
	}

	if reply, ok := env.Result.(*analysis.ChatReply); ok && !env.Fallback {
		if err := store.Save(ctx, conversationID, reply.History); err != nil {
			a.logger.Warn("Failed to save conversation",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
		}
	}
	return env, nil
}

// runAnalysis runs req under a progress controller that reports to errOut.
// An interrupt cancels the run.
func (a *app) runAnalysis(ctx context.Context, req analysis.Request) (analysis.Envelope, error) {
	controller := progress.NewController(
		progress.WithInterval(a.cfg.Progress.Interval),
		progress.WithTimeout(a.cfg.Progress.Timeout),
		progress.WithLogger(a.logger),
	)
	unsubscribe := controller.Subscribe(a.reportProgress)
	defer unsubscribe()

	stop := cancelOnInterrupt(controller, a.errOut)
	defer stop()

	return progress.Run(ctx, controller, func(ctx context.Context) (analysis.Envelope, error) {
		return a.client.AnalyzeOrFallback(ctx, req)
	})
}

func (a *app) reportProgress(event progress.Event) {
	switch event.Type {
	case progress.EventTypeError:
		fmt.Fprintf(a.errOut, "[%3d%%] %s: %s\n", event.Progress, event.Stage, event.Error)
	case progress.EventTypeCancelled:
		fmt.Fprintln(a.errOut, "Cancelled")
	default:
		fmt.Fprintf(a.errOut, "[%3d%%] %s\n", event.Progress, event.Stage)
	}
}

// cancelOnInterrupt cancels the controller's run on SIGINT or SIGTERM until
// the returned stop function is called
func cancelOnInterrupt(controller *progress.Controller, w io.Writer) func() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-signals:
			fmt.Fprintln(w, "Cancelling...")
			<-controller.Cancel()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}

func (a *app) printEnvelope(env analysis.Envelope, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		_, err = fmt.Fprintln(a.out, string(data))
		return err
	}

	if env.Fallback {
		fmt.Fprintf(a.errOut, "%s: %s\n", env.Notice, env.Message)
	}
	renderResult(a.out, env.Result)
	return nil
}

func renderResult(w io.Writer, result analysis.Result) {
	switch r := result.(type) {
	case *analysis.SymptomAnalysis:
		fmt.Fprintln(w, r.Text)
	case *analysis.ImageAnalysis:
		fmt.Fprintln(w, r.Text)
	case *analysis.ChatReply:
		fmt.Fprintln(w, r.Response)
	case *analysis.ConditionList:
		for _, c := range r.Conditions {
			fmt.Fprintf(w, "%d. %s (%d%%, %s severity)\n", c.ID, c.Name, c.Probability, c.Severity)
			if c.Description != "" {
				fmt.Fprintf(w, "   %s\n", c.Description)
			}
			if c.SpecialistType != "" {
				fmt.Fprintf(w, "   Next step: %s with a %s\n", c.RecommendedAction, c.SpecialistType)
			}
		}
	case *analysis.ReportAnalysis:
		fmt.Fprintf(w, "%s [%s]\n%s\n", r.Summary.Title, r.Summary.Severity, r.Summary.Content)
		if len(r.Findings) > 0 {
			fmt.Fprintln(w, "\nFindings:")
			for _, f := range r.Findings {
				fmt.Fprintf(w, "- %s [%s]: %s\n", f.Title, f.Severity, f.Explanation)
				if f.Recommendation != "" {
					fmt.Fprintf(w, "  %s\n", f.Recommendation)
				}
			}
		}
		if len(r.RiskFactors) > 0 {
			fmt.Fprintln(w, "\nRisk factors:")
			for _, rf := range r.RiskFactors {
				fmt.Fprintf(w, "- %s: %s\n", rf.Factor, rf.Risk)
			}
		}
		if len(r.NextSteps) > 0 {
			fmt.Fprintln(w, "\nNext steps:")
			for _, step := range r.NextSteps {
				fmt.Fprintf(w, "- %s\n", step)
			}
		}
	}
}

// readInput reads path, or stdin when path is "-"
func readInput(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}
	return string(data), nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}
