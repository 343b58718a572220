package discord

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

func TestStripRoleDecoration(t *testing.T) {
	cases := map[string]string{
		"LPD":               "LPD",
		"| LPD |":           "LPD",
		"\u2800\u2800LPD":   "LPD",
		"\u3000Cadet\u3000": "Cadet",
		"| Senior Officer":  "Senior Officer",
		"   ":               "",
	}
	for in, want := range cases {
		if got := stripRoleDecoration(in); got != want {
			t.Errorf("stripRoleDecoration(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSnowflakes(t *testing.T) {
	got := parseSnowflakes([]string{"123", "abc", "456789012345678901"})
	if len(got) != 2 || got[0] != 123 || got[1] != 456789012345678901 {
		t.Fatalf("got %v", got)
	}
	if _, err := parseSnowflake(""); err == nil {
		t.Fatal("empty id should fail")
	}
}

func TestSplitMessage(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		parts := splitMessage("hola", 2000)
		if len(parts) != 1 || parts[0] != "hola" {
			t.Fatalf("got %q", parts)
		}
	})

	t.Run("prefers newlines", func(t *testing.T) {
		line := strings.Repeat("a", 9) + "\n"
		msg := strings.Repeat(line, 5) // 50 bytes
		parts := splitMessage(msg, 25)
		if strings.Join(parts, "") != msg {
			t.Fatal("split lost content")
		}
		for _, p := range parts {
			if len(p) > 25 {
				t.Fatalf("part too long: %d", len(p))
			}
			if !strings.HasSuffix(p, "\n") {
				t.Fatalf("part %q should end at a newline", p)
			}
		}
	})

	t.Run("no newline keeps runes whole", func(t *testing.T) {
		msg := strings.Repeat("ñ", 30) // 60 bytes
		parts := splitMessage(msg, 25)
		if strings.Join(parts, "") != msg {
			t.Fatal("split lost content")
		}
		for _, p := range parts {
			if len(p) > 25 || !utf8.ValidString(p) {
				t.Fatalf("bad part %q", p)
			}
		}
	})
}

func TestCodeBlocks(t *testing.T) {
	lines := make([]string, 300)
	for i := range lines {
		lines[i] = "oficial_con_nombre_largo"
	}
	parts := codeBlocks("Todos en el rol `LPD`:\n", lines, maxMessageLen)
	if len(parts) < 2 {
		t.Fatalf("expected several messages, got %d", len(parts))
	}
	total := 0
	for i, p := range parts {
		if len(p) > maxMessageLen {
			t.Fatalf("part %d is %d bytes", i, len(p))
		}
		if strings.Count(p, "```") != 2 {
			t.Fatalf("part %d has unbalanced fences", i)
		}
		total += strings.Count(p, "oficial_con_nombre_largo")
	}
	if total != len(lines) {
		t.Fatalf("lines = %d, want %d", total, len(lines))
	}
	if !strings.HasPrefix(parts[0], "Todos en el rol") || strings.HasPrefix(parts[1], "Todos") {
		t.Fatal("header only goes on the first message")
	}
}

func TestCodeBlocks_Empty(t *testing.T) {
	parts := codeBlocks("h\n", nil, maxMessageLen)
	if len(parts) != 1 || parts[0] != "h\n```\n```" {
		t.Fatalf("got %q", parts)
	}
}

func TestChannelInfo(t *testing.T) {
	info := channelInfo(&discordgo.Channel{Name: "Patrulla 1", ParentID: "555"})
	if info.Name != "Patrulla 1" || info.ParentID != 555 {
		t.Fatalf("got %+v", info)
	}
	if info := channelInfo(&discordgo.Channel{Name: "suelto"}); info.ParentID != 0 {
		t.Fatalf("got %+v", info)
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName(&discordgo.Member{Nick: "Kes", User: &discordgo.User{Username: "kestrel"}}); got != "Kes" {
		t.Fatalf("got %q", got)
	}
	if got := displayName(&discordgo.Member{User: &discordgo.User{Username: "kestrel"}}); got != "kestrel" {
		t.Fatalf("got %q", got)
	}
}
