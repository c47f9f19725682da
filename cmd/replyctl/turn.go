package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	turnSessionID  string
	turnID         string
	turnGoal       string
	turnCandidates int

	feedbackSessionID string
	feedbackTurnID    string
	feedbackChosen    int
	feedbackReward    float64
)

// turnCmd runs one decision round for a user message
var turnCmd = &cobra.Command{
	Use:   "turn [message]",
	Short: "Run a turn for a user message and print the selected reply",
	Long: `Run one decision round: the server generates candidate replies for the
message, the bandit selects one, and the turn is held pending until feedback.

Examples:
  # Run a turn for a message
  replyctl turn "I had a rough day at work"

  # Read the message from stdin
  echo "help me plan the week" | replyctl turn -

  # Continue a session with an explicit turn id
  replyctl turn --session s1 --turn t2 "what should I do next?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTurn,
}

// feedbackCmd submits a reward for a pending turn
var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Submit a reward for a pending turn",
	Long: `Submit a reward in [-1, 1] for a turn previously run with "replyctl turn".
The session and turn identifiers come from the turn output.

Examples:
  replyctl feedback --session s1 --turn t2 --chosen 0 --reward 1`,
	RunE: runFeedback,
}

// stylesCmd lists the reply styles known to the server
var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "List the reply styles known to the server",
	RunE:  runStyles,
}

func init() {
	turnCmd.Flags().StringVar(&turnSessionID, "session", "", "session identifier (server derives one when empty)")
	turnCmd.Flags().StringVar(&turnID, "turn", "", "turn identifier (server generates one when empty)")
	turnCmd.Flags().StringVar(&turnGoal, "goal", "", "conversation goal hint for the generator")
	turnCmd.Flags().IntVar(&turnCandidates, "candidates", 0, "number of candidates to generate (0 = server default)")

	feedbackCmd.Flags().StringVar(&feedbackSessionID, "session", "", "session identifier from the turn output")
	feedbackCmd.Flags().StringVar(&feedbackTurnID, "turn", "", "turn identifier from the turn output")
	feedbackCmd.Flags().IntVar(&feedbackChosen, "chosen", 0, "chosen candidate index from the turn output")
	feedbackCmd.Flags().Float64Var(&feedbackReward, "reward", 0, "reward in [-1, 1]")
	_ = feedbackCmd.MarkFlagRequired("session")
	_ = feedbackCmd.MarkFlagRequired("turn")
	_ = feedbackCmd.MarkFlagRequired("reward")
}

// TurnRequest matches internal/http TurnRequest
type TurnRequest struct {
	SessionID      string           `json:"session_id,omitempty"`
	TurnID         string           `json:"turn_id,omitempty"`
	Messages       []MessagePayload `json:"messages"`
	Goal           string           `json:"goal,omitempty"`
	CandidateCount int              `json:"candidate_count,omitempty"`
}

// MessagePayload matches internal/http MessagePayload
type MessagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CandidateView matches internal/http CandidateView
type CandidateView struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Style string `json:"style"`
}

// TurnResponse matches internal/http TurnResponse
type TurnResponse struct {
	SessionID   string        `json:"session_id"`
	TurnID      string        `json:"turn_id"`
	ContextHash string        `json:"context_hash"`
	Reply       CandidateView `json:"reply"`
	Propensity  float64       `json:"propensity"`
}

// FeedbackRequest matches internal/http FeedbackRequest
type FeedbackRequest struct {
	SessionID   string  `json:"session_id"`
	TurnID      string  `json:"turn_id"`
	ChosenIndex int     `json:"chosen_idx"`
	Reward      float64 `json:"reward"`
}

// StyleView matches internal/http StyleView
type StyleView struct {
	Name        string  `json:"name"`
	Initiative  float64 `json:"initiative"`
	Risk        float64 `json:"risk"`
	Description string  `json:"description"`
}

// StylesResponse matches internal/http StylesResponse
type StylesResponse struct {
	Styles []StyleView `json:"styles"`
}

// runTurn handles the turn command
func runTurn(cmd *cobra.Command, args []string) error {
	var message string
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		message = string(content)
	} else {
		message = args[0]
	}
	if message == "" {
		return fmt.Errorf("no message to send")
	}

	reqBody := TurnRequest{
		SessionID:      turnSessionID,
		TurnID:         turnID,
		Goal:           turnGoal,
		CandidateCount: turnCandidates,
		Messages:       []MessagePayload{{Role: "user", Content: message}},
	}

	var turnResp TurnResponse
	if err := postJSON("/api/v1/turn", reqBody, &turnResp); err != nil {
		return err
	}

	fmt.Println(turnResp.Reply.Text)
	fmt.Fprintf(os.Stderr, "\n[replyctl] session=%s turn=%s chosen=%d style=%s propensity=%.3f\n",
		turnResp.SessionID, turnResp.TurnID, turnResp.Reply.Index, turnResp.Reply.Style, turnResp.Propensity)
	return nil
}

// runFeedback handles the feedback command
func runFeedback(cmd *cobra.Command, args []string) error {
	reqBody := FeedbackRequest{
		SessionID:   feedbackSessionID,
		TurnID:      feedbackTurnID,
		ChosenIndex: feedbackChosen,
		Reward:      feedbackReward,
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := postJSON("/api/v1/feedback", reqBody, &resp); err != nil {
		return err
	}

	fmt.Printf("Feedback %s\n", resp.Status)
	return nil
}

// runStyles handles the styles command
func runStyles(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/v1/styles", serverURL)

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var stylesResp StylesResponse
	if err := json.NewDecoder(resp.Body).Decode(&stylesResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	for _, s := range stylesResp.Styles {
		fmt.Printf("%-16s initiative=%.2f risk=%.2f  %s\n", s.Name, s.Initiative, s.Risk, s.Description)
	}
	return nil
}

// postJSON sends a JSON POST request and decodes the response into out.
func postJSON(path string, body, out any) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s%s", serverURL, path)
	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
