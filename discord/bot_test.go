package discord

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/hazyhaar/guildbrand/catalog"
)

type fakeHandler struct {
	mu        sync.Mutex
	available map[string]string
	gone      []string
	commands  []string
}

func (f *fakeHandler) GuildAvailable(_ context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available[id] = name
	return nil
}

func (f *fakeHandler) GuildUnavailable(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone = append(f.gone, id)
	return nil
}

func (f *fakeHandler) Command(_ context.Context, id string, size catalog.SizeClass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, id+":"+size.String())
	return nil
}

type fakeEditor struct {
	guildID string
	params  *discordgo.GuildParams
	err     error
}

func (f *fakeEditor) GuildEdit(guildID string, g *discordgo.GuildParams, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	f.guildID, f.params = guildID, g
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Guild{ID: guildID}, nil
}

func testBot(t *testing.T) (*Bot, *fakeHandler, *fakeEditor) {
	t.Helper()
	h := &fakeHandler{available: map[string]string{}}
	b, err := New(Config{Token: "test-token"}, h, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	ed := &fakeEditor{}
	b.editor = ed
	return b, h, ed
}

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New(Config{}, &fakeHandler{}, nil); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in     string
		want   catalog.SizeClass
		wantOK bool
	}{
		{"$random icon", catalog.Icon, true},
		{"$random banner", catalog.Banner, true},
		{"  $random banner\n", catalog.Banner, true},
		{"$random", 0, false},
		{"$random splash", 0, false},
		{"$random icon please", 0, false},
		{"random icon", 0, false},
		{"hello", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseCommand(tt.in, "$random")
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("ParseCommand(%q): got %v, %v", tt.in, got, ok)
		}
	}
}

func TestDataURI(t *testing.T) {
	got := DataURI("image/gif", []byte("GIF89a"))
	want := "data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("GIF89a"))
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTransport_SetIconAndBanner(t *testing.T) {
	b, _, ed := testBot(t)
	ctx := context.Background()

	if err := b.SetIcon(ctx, "g1", []byte("GIF")); err != nil {
		t.Fatal(err)
	}
	if ed.guildID != "g1" || !strings.HasPrefix(ed.params.Icon, "data:image/gif;base64,") || ed.params.Banner != "" {
		t.Errorf("icon edit: %s %+v", ed.guildID, ed.params)
	}

	if err := b.SetBanner(ctx, "g2", []byte("JPEG")); err != nil {
		t.Fatal(err)
	}
	if ed.guildID != "g2" || !strings.HasPrefix(ed.params.Banner, "data:image/jpeg;base64,") || ed.params.Icon != "" {
		t.Errorf("banner edit: %s %+v", ed.guildID, ed.params)
	}

	ed.err = errors.New("HTTP 403 Forbidden")
	if err := b.SetIcon(ctx, "g1", []byte("GIF")); err == nil || !strings.Contains(err.Error(), "g1") {
		t.Errorf("edit failure: got %v", err)
	}
}

func TestEvents(t *testing.T) {
	b, h, _ := testBot(t)

	b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g1", Name: "One"}})
	b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g2", Unavailable: true}})
	b.onGuildDelete(nil, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "g1"}})

	b.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "g1", Content: "$random icon", Author: &discordgo.User{ID: "u1"},
	}})
	b.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "", Content: "$random icon", Author: &discordgo.User{ID: "u1"},
	}})
	b.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "g1", Content: "$random banner", Author: &discordgo.User{ID: "b1", Bot: true},
	}})
	b.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "g1", Content: "$random banner", Author: &discordgo.User{ID: "u2"},
	}})

	if len(h.available) != 1 || h.available["g1"] != "One" {
		t.Errorf("available: %v", h.available)
	}
	if len(h.gone) != 1 || h.gone[0] != "g1" {
		t.Errorf("gone: %v", h.gone)
	}
	want := []string{"g1:icon", "g1:banner"}
	if len(h.commands) != 2 || h.commands[0] != want[0] || h.commands[1] != want[1] {
		t.Errorf("commands: got %v, want %v", h.commands, want)
	}
}
