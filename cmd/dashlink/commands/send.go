package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"git.home.luguber.info/inful/dashlink/internal/config"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/server/responses"
)

// SendCmd implements the 'send' command.
type SendCmd struct {
	Command []string      `arg:"" help:"Command line to send, e.g. 'reload' or 'function dash/reload'"`
	Admin   string        `help:"Admin API address (defaults to admin.listen from the config)" placeholder:"HOST:PORT"`
	Timeout time.Duration `help:"How long to wait for the reply" default:"30s"`
}

func (s *SendCmd) Run(_ *Global, root *CLI) error {
	addr := s.Admin
	if addr == "" {
		addr = config.DefaultAdminListen
		if cfg, err := config.Load(root.Config); err == nil {
			addr = cfg.Admin.Listen
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	res, err := SendCommand(ctx, http.DefaultClient, addr, strings.Join(s.Command, " "))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "%s (status %d)\n", res.Message, res.Status)
	return nil
}

// SendCommand posts command to a running instance's admin API and returns the reply.
func SendCommand(ctx context.Context, client *http.Client, addr, command string) (responses.CommandResponse, error) {
	var res responses.CommandResponse
	body, err := json.Marshal(responses.CommandRequest{Command: command})
	if err != nil {
		return res, err
	}
	url := "http://" + addr + "/api/command"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return res, ferrors.WrapError(err, ferrors.CategoryValidation, "build request").Build()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return res, ferrors.WrapError(err, ferrors.CategoryNetwork, "admin API unreachable").
			WithContext("addr", addr).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return res, ferrors.WrapError(err, ferrors.CategoryNetwork, "read admin API response").Build()
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(data, &res); err != nil {
			return res, ferrors.WrapError(err, ferrors.CategoryProtocol, "decode admin API response").Build()
		}
		return res, nil
	}

	// Command failures carry {message, status}; other failures the generic error payload.
	if json.Unmarshal(data, &res) == nil && res.Message != "" {
		return res, ferrors.ChannelError(res.Message).
			WithContext("status", res.Status).
			WithContext("http_status", resp.StatusCode).
			Build()
	}
	var apiErr ferrors.HTTPErrorResponse
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	return res, ferrors.NetworkError(msg).
		WithContext("http_status", resp.StatusCode).
		Build()
}
