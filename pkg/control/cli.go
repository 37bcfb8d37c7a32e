package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const maxDisplayOutput = 500

// CLIApprover prompts on a terminal: [a]pprove, [r]eject with a reason, or
// [e]dit the output (terminated by an empty line). Prompts are serialised so
// parallel steps never interleave.
type CLIApprover struct {
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex
}

// NewCLIApprover creates a CLI approver reading from r and writing to w
func NewCLIApprover(r io.Reader, w io.Writer) *CLIApprover {
	return &CLIApprover{reader: bufio.NewReader(r), writer: w}
}

// RequestApproval prompts the user and waits for an answer or ctx
func (c *CLIApprover) RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.displayRequest(req)

	type answer struct {
		decision ApprovalDecision
		err      error
	}
	answerChan := make(chan answer, 1)

	go func() {
		d, err := c.readDecision(req)
		answerChan <- answer{d, err}
	}()

	select {
	case a := <-answerChan:
		return a.decision, a.err
	case <-ctx.Done():
		fmt.Fprintln(c.writer, "\n  ⏱️  Approval request TIMED OUT")
		return ApprovalDecision{Approved: false, Reason: "timeout"}, ctx.Err()
	}
}

func (c *CLIApprover) displayRequest(req ApprovalRequest) {
	output := req.Output
	if len(output) > maxDisplayOutput {
		output = output[:maxDisplayOutput] + "..."
	}

	fmt.Fprintln(c.writer, "")
	fmt.Fprintln(c.writer, "╔════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(c.writer, "║              🔔 APPROVAL REQUIRED                              ║")
	fmt.Fprintln(c.writer, "╚════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(c.writer, "")
	fmt.Fprintf(c.writer, "  Step:   %s\n", req.StepID)
	fmt.Fprintf(c.writer, "  Agent:  %s\n", req.AgentName)
	fmt.Fprintf(c.writer, "  Task:   %s\n", req.Task)
	fmt.Fprintln(c.writer, "")
	fmt.Fprintln(c.writer, "  Output:")
	for _, line := range strings.Split(output, "\n") {
		fmt.Fprintf(c.writer, "    %s\n", line)
	}
	fmt.Fprintln(c.writer, "")
	fmt.Fprint(c.writer, "  Action? [a]pprove / [r]eject / [e]dit (default a): ")
}

func (c *CLIApprover) readLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *CLIApprover) readDecision(req ApprovalRequest) (ApprovalDecision, error) {
	input, err := c.readLine()
	if err != nil {
		if err == io.EOF {
			return ApprovalDecision{Approved: false, Reason: "no input provided"}, nil
		}
		return ApprovalDecision{}, fmt.Errorf("failed to read input: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "a", "y", "yes", "approve":
		fmt.Fprintln(c.writer, "\n  ✅ Approved")
		log.Info().Str("step", req.StepID).Msg("Step approved via CLI")
		return ApprovalDecision{Approved: true}, nil

	case "r", "n", "no", "reject":
		fmt.Fprint(c.writer, "  Rejection reason: ")
		reason, err := c.readLine()
		if err != nil && err != io.EOF {
			return ApprovalDecision{}, fmt.Errorf("failed to read input: %w", err)
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "No reason given"
		}
		fmt.Fprintf(c.writer, "\n  ❌ Rejected: %s\n", reason)
		log.Info().Str("step", req.StepID).Str("reason", reason).Msg("Step rejected via CLI")
		return ApprovalDecision{Approved: false, Reason: reason}, nil

	case "e", "edit":
		fmt.Fprintln(c.writer, "  Enter new output (end with an empty line):")
		var lines []string
		for {
			line, err := c.readLine()
			if err != nil || line == "" {
				break
			}
			lines = append(lines, line)
		}
		edited := req.Output
		if len(lines) > 0 {
			edited = strings.Join(lines, "\n")
		}
		fmt.Fprintln(c.writer, "\n  ✅ Approved with edits")
		log.Info().Str("step", req.StepID).Msg("Step approved with edits via CLI")
		return ApprovalDecision{Approved: true, EditedOutput: edited}, nil

	default:
		fmt.Fprintf(c.writer, "\n  ⚠️  Invalid input: %s (defaulting to REJECT)\n", input)
		log.Warn().Str("step", req.StepID).Str("input", input).Msg("Invalid input for approval")
		return ApprovalDecision{Approved: false, Reason: fmt.Sprintf("invalid input: %s", input)}, nil
	}
}
