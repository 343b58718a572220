package domain

import "time"

// Officer es una fila de `officers`. DeletedAt == nil => oficial activo.
type Officer struct {
	ID                int64
	VRChatName        string
	VRChatID          string
	StartedMonitoring time.Time
	DeletedAt         *time.Time
}

func (o Officer) Active() bool { return o.DeletedAt == nil }

// SavedVoiceChannel: canal de voz referenciado por algún patrol. (guild, channel) es único.
type SavedVoiceChannel struct {
	ID        int32
	GuildID   int64
	ChannelID int64
	Name      string
}

type Event struct {
	ID    int32
	Start time.Time
	End   time.Time
	Hosts string
}

// Patrol es una sesión de servicio cerrada.
type Patrol struct {
	ID            int32
	OfficerID     int64
	MainChannelID int32
	Start         time.Time
	End           time.Time
	EventID       *int32
}

func (p Patrol) Duration() time.Duration { return p.End.Sub(p.Start) }

// PatrolVoice es un intervalo del patrol dentro de un solo canal.
type PatrolVoice struct {
	ID        int32
	PatrolID  int32
	ChannelID int32
	Start     time.Time
	End       time.Time
}

// PatrolRecord: patrol + hijos, tal como lo devuelve el query engine.
type PatrolRecord struct {
	Patrol
	MainChannel SavedVoiceChannel
	Voices      []PatrolVoiceRecord
}

type PatrolVoiceRecord struct {
	PatrolVoice
	Channel SavedVoiceChannel
}

// ---------- estado en memoria ----------

// ChannelLog: End == nil significa "sigue en este canal".
type ChannelLog struct {
	GuildID   int64
	ChannelID int64
	Start     time.Time
	End       *time.Time
}

// PatrolLog es el patrol abierto de un oficial. Todos los ChannelLog salvo el último
// tienen End; el último tiene End == nil mientras el oficial está de servicio.
type PatrolLog struct {
	OfficerID int64
	VoiceLog  []ChannelLog
}

// Current devuelve el canal abierto (último ChannelLog sin End).
func (p *PatrolLog) Current() (int64, bool) {
	if p == nil || len(p.VoiceLog) == 0 {
		return 0, false
	}
	last := p.VoiceLog[len(p.VoiceLog)-1]
	if last.End != nil {
		return 0, false
	}
	return last.ChannelID, true
}

// Clone copia profunda: los handlers trabajan sobre copias fuera del lock.
func (p *PatrolLog) Clone() *PatrolLog {
	out := &PatrolLog{OfficerID: p.OfficerID, VoiceLog: make([]ChannelLog, len(p.VoiceLog))}
	for i, cl := range p.VoiceLog {
		out.VoiceLog[i] = cl
		if cl.End != nil {
			end := *cl.End
			out.VoiceLog[i].End = &end
		}
	}
	return out
}
