package discord

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// límite de Discord por mensaje
const maxMessageLen = 2000

func parseSnowflake(id string) (int64, error) {
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("snowflake %q: %w", id, err)
	}
	return v, nil
}

// parseSnowflakes ignora los ids que no parsean (Discord nunca debería mandarlos).
func parseSnowflakes(ids []string) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if v, err := parseSnowflake(id); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// stripRoleDecoration saca los adornos que le ponen a los nombres de rol ("| LPD |", "⠀LPD⠀").
func stripRoleDecoration(name string) string {
	return strings.Trim(name, " |\u2800\u3000")
}

// splitMessage corta en trozos de a lo sumo limit bytes, preferentemente en un salto de línea.
func splitMessage(msg string, limit int) []string {
	if limit <= 0 {
		limit = maxMessageLen
	}
	var out []string
	for len(msg) > limit {
		cut := strings.LastIndexByte(msg[:limit], '\n')
		if cut <= 0 {
			cut = limit
			// no cortar una runa al medio
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
		} else {
			cut++ // el salto queda en el trozo anterior
		}
		out = append(out, msg[:cut])
		msg = msg[cut:]
	}
	if msg != "" || len(out) == 0 {
		out = append(out, msg)
	}
	return out
}

// codeBlocks arma mensajes con header y las líneas dentro de bloques ``` sin pasar el límite.
// Asume líneas cortas (nicks de Discord: 32 chars).
func codeBlocks(header string, lines []string, limit int) []string {
	const fence = "```"
	var out []string
	var b strings.Builder
	open := func(h string) {
		b.Reset()
		b.WriteString(h)
		b.WriteString(fence + "\n")
	}
	open(header)
	empty := true
	for _, l := range lines {
		if b.Len()+len(l)+1+len(fence) > limit && !empty {
			b.WriteString(fence)
			out = append(out, b.String())
			open("")
			empty = true
		}
		b.WriteString(l)
		b.WriteByte('\n')
		empty = false
	}
	b.WriteString(fence)
	return append(out, b.String())
}

func findOpt(ic *discordgo.InteractionCreate, name string) *discordgo.ApplicationCommandInteractionDataOption {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	for _, o := range ic.ApplicationCommandData().Options {
		if o.Name == name {
			return o
		}
		// subcommand
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			for _, so := range o.Options {
				if so.Name == name {
					return so
				}
			}
		}
	}
	return nil
}

func optStr(ic *discordgo.InteractionCreate, name string) (string, bool) {
	o := findOpt(ic, name)
	if o == nil || o.Type != discordgo.ApplicationCommandOptionString {
		return "", false
	}
	return o.StringValue(), true
}

func optBool(ic *discordgo.InteractionCreate, name string) (bool, bool) {
	o := findOpt(ic, name)
	if o == nil || o.Type != discordgo.ApplicationCommandOptionBoolean {
		return false, false
	}
	return o.BoolValue(), true
}

func optInt(ic *discordgo.InteractionCreate, name string) (int, bool) {
	o := findOpt(ic, name)
	if o == nil || o.Type != discordgo.ApplicationCommandOptionInteger {
		return 0, false
	}
	return int(o.IntValue()), true
}

// optUserID devuelve el id crudo: no necesitamos resolver el *User.
func optUserID(ic *discordgo.InteractionCreate, name string) (string, bool) {
	o := findOpt(ic, name)
	if o == nil || o.Type != discordgo.ApplicationCommandOptionUser {
		return "", false
	}
	id, ok := o.Value.(string)
	return id, ok && id != ""
}

func interactionUserID(ic *discordgo.InteractionCreate) string {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User.ID
	}
	if ic.User != nil {
		return ic.User.ID
	}
	return ""
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil {
		return m.User.Username
	}
	return "?"
}

func formatSnowflake(id int64) string { return strconv.FormatInt(id, 10) }
