package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const baseURL = "http://localhost:3000/api/session/v1"

// Simplified DTOs for the script
type createSessionResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type addAgentRequest struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Trait string `json:"trait"`
}

type snapshotResponse struct {
	Data struct {
		Status    string `json:"status"`
		Phase     string `json:"phase"`
		TurnIndex int    `json:"turn_index"`
		Turns     []struct {
			TurnIndex int     `json:"turn_index"`
			Text      string  `json:"text"`
			Sentiment float64 `json:"sentiment"`
		} `json:"turns"`
	} `json:"data"`
}

func main() {
	fmt.Println("=== Session Lifecycle Smoke Client ===")

	sessionID := createSession()
	fmt.Printf("Created session: %s\n", sessionID)

	agents := []addAgentRequest{
		{Name: "Mia", Role: "moderator", Trait: "Keeps the group on schedule."},
		{Name: "Ana", Role: "participant", Trait: "UX researcher."},
		{Name: "Ben", Role: "participant", Trait: "Backend engineer."},
	}
	for _, a := range agents {
		post(fmt.Sprintf("/%s/agents", sessionID), a)
		fmt.Printf("Added agent: %s (%s)\n", a.Name, a.Role)
	}

	post(fmt.Sprintf("/%s/start", sessionID), nil)
	fmt.Println("Session started, letting it run...")
	time.Sleep(10 * time.Second)

	post(fmt.Sprintf("/%s/pause", sessionID), nil)
	fmt.Println("Paused.")
	time.Sleep(2 * time.Second)

	post(fmt.Sprintf("/%s/resume", sessionID), nil)
	fmt.Println("Resumed.")
	time.Sleep(5 * time.Second)

	post(fmt.Sprintf("/%s/advance", sessionID), nil)
	fmt.Println("Advanced to next phase.")
	time.Sleep(5 * time.Second)

	post(fmt.Sprintf("/%s/stop", sessionID), nil)
	fmt.Println("Stopped.")

	snap := snapshot(sessionID)
	fmt.Printf("Final state: status=%s phase=%s turns=%d\n", snap.Data.Status, snap.Data.Phase, snap.Data.TurnIndex)
	for _, turn := range snap.Data.Turns {
		fmt.Printf("  [%d] (sentiment %.2f) %.80s\n", turn.TurnIndex, turn.Sentiment, turn.Text)
	}
}

func createSession() string {
	body := map[string]interface{}{
		"title":             "Smoke Test Session",
		"problem_statement": "Verify the discussion loop end to end.",
		"time_limit_sec":    600,
	}
	raw := post("", body)

	var resp createSessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Fatalf("Failed to parse create response: %v", err)
	}
	return resp.Data.ID
}

func snapshot(sessionID string) snapshotResponse {
	res, err := http.Get(baseURL + fmt.Sprintf("/%s/snapshot", sessionID))
	if err != nil {
		log.Fatalf("Snapshot request failed: %v", err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	var snap snapshotResponse
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Fatalf("Failed to parse snapshot: %v", err)
	}
	return snap
}

func post(path string, body interface{}) []byte {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("Failed to encode body: %v", err)
		}
	}

	res, err := http.Post(baseURL+path, "application/json", &buf)
	if err != nil {
		log.Fatalf("POST %s failed: %v", path, err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		log.Fatalf("POST %s returned %d: %s", path, res.StatusCode, raw)
	}
	return raw
}
