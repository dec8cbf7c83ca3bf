package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Queues one record for matching through the ops API.
func main() {
	recordID := flag.String("record-id", "", "Solicitation number of the record")
	recordKey := flag.String("record-key", "", "Object key of the record in the records bucket")
	server := flag.String("server", "http://localhost:8081", "Ops server base URL")
	flag.Parse()

	if *recordKey == "" {
		fmt.Println("Missing -record-key")
		os.Exit(1)
	}

	adminSecret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	if adminSecret == "" {
		fmt.Println("Missing ADMIN_SECRET environment variable")
		os.Exit(1)
	}

	payload, _ := json.Marshal(map[string]string{
		"record_id":  *recordID,
		"record_key": *recordKey,
	})

	req, err := http.NewRequest("POST", *server+"/api/v1/match", bytes.NewReader(payload))
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", adminSecret)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Printf("Response Status: %s\n", resp.Status)
	if resp.StatusCode != http.StatusAccepted {
		os.Exit(1)
	}
}
