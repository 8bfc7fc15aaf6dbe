package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/xela07ax/openexec-gateway/internal/approval"
	"github.com/xela07ax/openexec-gateway/internal/infra"
)

/*
govexec — демо-клиент governed-потока: запрашивает у authority артефакт
одобрения для пары action+payload и отправляет действие на исполнение
в шлюз уже с артефактом. Клиентская сторона того же контракта, который
шлюз проверяет в approval/validator.go.
*/

type options struct {
	gatewayURL   string
	authorityURL string
	action       string
	payloadJSON  string
	nonce        string
}

func main() {
	var opts options
	flag.StringVar(&opts.gatewayURL, "gateway", "http://localhost:8080", "адрес шлюза")
	flag.StringVar(&opts.authorityURL, "authority", "", "адрес authority (по умолчанию — approval.authority_url из конфига)")
	flag.StringVar(&opts.action, "action", "echo", "имя действия")
	flag.StringVar(&opts.payloadJSON, "payload", "{}", "payload действия (JSON)")
	flag.StringVar(&opts.nonce, "nonce", "", "ключ идемпотентности (по умолчанию — новый UUID)")
	flag.Parse()

	if opts.authorityURL == "" {
		cfg, err := infra.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		opts.authorityURL = cfg.Approval.AuthorityURL
	}
	if opts.authorityURL == "" {
		fmt.Fprintln(os.Stderr, "authority URL is not configured: pass -authority or set approval.authority_url")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := run(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "govexec: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(out)
}

// run проводит одно действие через governed-поток end-to-end:
// артефакт от authority → POST /execute с этим артефактом.
func run(ctx context.Context, opts options) (string, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(opts.payloadJSON), &payload); err != nil {
		return "", fmt.Errorf("invalid payload JSON: %w", err)
	}
	if opts.nonce == "" {
		opts.nonce = uuid.New().String()
	}

	authority := approval.NewAuthorityClient(opts.authorityURL)
	artifact, err := authority.RequestArtifact(ctx, opts.action, payload)
	if err != nil {
		return "", fmt.Errorf("authority refused artifact: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"action":            opts.action,
		"payload":           payload,
		"nonce":             opts.nonce,
		"approval_artifact": artifact,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.gatewayURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway returned [%d]: %s", resp.StatusCode, string(data))
	}
	return string(data), nil
}
