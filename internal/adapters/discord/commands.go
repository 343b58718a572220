package discord

import "github.com/bwmarrin/discordgo"

var minDays = 1.0

func (r *Router) commandSet() []Command {
	return []Command{
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "ping",
				Description: "Chequeo de vida del bot",
			},
			Handler: r.cmdPing,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "patrol_time",
				Description: "Tiempo de patrullaje de un oficial",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "officer",
						Description: "Oficial a consultar",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "from",
						Description: "Desde (YYYY-MM-DD)",
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "to",
						Description: "Hasta (YYYY-MM-DD, default hoy)",
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "days",
						Description: "Días hacia atrás si no pasás from (default 7)",
						MinValue:    &minDays,
					},
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "list",
						Description: "Listar cada patrullaje",
					},
				},
			},
			Handler: r.cmdPatrolTime,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "rtv",
				Description: "Lista los miembros de un rol",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "role_name",
					Description: "Nombre del rol (sin adornos)",
					Required:    true,
				}},
			},
			Handler: r.cmdRoleMembers,
		},
	}
}
