package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	cfgPkg "github.com/xhad/docqa/pkg/config"
	"github.com/xhad/docqa/pkg/rag"
)

// questionList collects repeated -q flags.
type questionList []string

func (q *questionList) String() string { return strings.Join(*q, ", ") }

func (q *questionList) Set(v string) error {
	*q = append(*q, v)
	return nil
}

func ask(ctx context.Context, config *cfgPkg.Config, args []string) error {
	var questions questionList
	fset := flag.NewFlagSet("ask", flag.ContinueOnError)
	doc := fset.String("doc", "", "URL of the pdf, docx or eml document")
	fset.Var(&questions, "q", "Question to ask (repeatable); read from stdin when omitted")
	asJSON := fset.Bool("json", false, "Print the response as JSON")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *doc == "" {
		return errors.New("-doc is required")
	}
	if len(questions) == 0 {
		read, err := readQuestions(os.Stdin)
		if err != nil {
			return err
		}
		questions = read
	}

	service, err := rag.NewFromConfig(ctx, config)
	if err != nil {
		return err
	}
	defer service.Close()

	spinner := getSpinner("Starting...")
	resp, err := service.RunWithProgress(ctx, rag.Request{Documents: *doc, Questions: questions}, func(e rag.Event) {
		spinner.Describe(color.CyanString("%s: %s", e.Stage, e.Message))
		spinner.Add(1)
	})
	spinner.Finish()
	fmt.Print("\r")

	var batchErr *rag.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(resp); encErr != nil {
			return encErr
		}
	} else {
		printAnswers(questions, resp.Answers)
	}
	return err
}

func readQuestions(r io.Reader) ([]string, error) {
	var questions []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			questions = append(questions, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return questions, nil
}

func printAnswers(questions, answers []string) {
	questionPrompt := color.New(color.FgGreen).PrintfFunc()
	answerPrompt := color.New(color.FgCyan).PrintfFunc()

	for i, q := range questions {
		questionPrompt("\nQ%d: %s\n", i+1, q)
		if answers[i] == "" {
			color.Red("A%d: (no answer)", i+1)
			continue
		}
		answerPrompt("A%d: %s\n", i+1, answers[i])
	}
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
