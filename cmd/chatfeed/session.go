package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/adi-253/chatfeed/internal/config"
	"github.com/adi-253/chatfeed/internal/feed"
	"github.com/adi-253/chatfeed/internal/models"
	"github.com/google/uuid"
)

// session is an opened thread: its resolved view, the IDs the page
// already showed and the headers every request carries.
type session struct {
	page   *feed.Page
	header http.Header
	client *http.Client
}

// openThread fetches the thread page and resolves its view configuration
// against the page URL.
func openThread(ctx context.Context, cfg *config.Client, client *http.Client) (*session, error) {
	header := http.Header{}
	header.Set("X-User-ID", strconv.FormatInt(cfg.UserID, 10))
	header.Set("X-Client-Session", uuid.NewString())

	pageURL := cfg.ThreadPageURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = header.Clone()

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch thread page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &feed.StatusError{Code: resp.StatusCode, URL: pageURL}
	}

	page, err := feed.LoadPage(resp.Body)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	if page.View, err = page.View.Resolve(base); err != nil {
		return nil, err
	}
	return &session{page: page, header: header, client: client}, nil
}

type commandKind int

const (
	cmdSend commandKind = iota
	cmdReply
	cmdNoReply
	cmdReact
	cmdEdit
)

// command is one parsed input line.
type command struct {
	kind commandKind
	id   models.ID
	text string
}

// parseCommand interprets an input line. Lines not starting with a known
// slash command are message bodies.
func parseCommand(line string) (command, error) {
	trimmed := strings.TrimSpace(line)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return command{kind: cmdSend}, nil
	}

	switch fields[0] {
	case "/noreply":
		return command{kind: cmdNoReply}, nil
	case "/reply", "/react", "/edit":
	default:
		return command{kind: cmdSend, text: line}, nil
	}

	if len(fields) < 2 {
		return command{}, fmt.Errorf("%s needs a message ID", fields[0])
	}
	id := models.ParseID(fields[1])
	if id <= 0 {
		return command{}, fmt.Errorf("invalid message ID %q", fields[1])
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))

	switch fields[0] {
	case "/reply":
		return command{kind: cmdReply, id: id}, nil
	case "/react":
		return command{kind: cmdReact, id: id, text: rest}, nil
	default:
		if rest == "" {
			return command{}, errors.New("/edit needs the new text")
		}
		return command{kind: cmdEdit, id: id, text: rest}, nil
	}
}

// apply runs one command against the synchronizer.
func apply(ctx context.Context, s *feed.Synchronizer, c command) error {
	switch c.kind {
	case cmdReply:
		s.Composer().SetReplyTo(c.id)
		return nil
	case cmdNoReply:
		s.Composer().ClearReply()
		return nil
	case cmdReact:
		_, err := s.React(ctx, c.id, c.text)
		return err
	case cmdEdit:
		_, err := s.Edit(ctx, c.id, c.text)
		return err
	default:
		s.Composer().SetBody(c.text)
		_, err := s.Submit(ctx)
		return err
	}
}
