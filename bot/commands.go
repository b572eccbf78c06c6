package bot

import "github.com/bwmarrin/discordgo"

// Commands are the guild slash commands the bot registers on startup.
func Commands() []*discordgo.ApplicationCommand {
	minAmount := 1.0
	return []*discordgo.ApplicationCommand{
		{Name: "verify", Description: "Verify your Twitch subscription to get the role"},
		{Name: "rank", Description: "Check your XP and Level"},
		{Name: "leaderboard", Description: "Show the top XP earners"},
		{
			Name:        "clear",
			Description: "Bulk delete messages in this channel",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "amount",
				Description: "Number of messages to delete",
				MinValue:    &minAmount,
				MaxValue:    maxClearAmount,
			}},
		},
		{Name: "rsocial", Description: "Admin: Refresh and post socials message"},
		{Name: "guidelines", Description: "Admin: Post the guidelines page"},
	}
}
