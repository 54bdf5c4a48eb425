package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/noko-bot/internal/arena"
)

const (
	colorInfo    = 0x3498DB
	colorSuccess = 0x2ECC71
	colorWarning = 0xF1C40F
	colorReset   = 0x9B59B6

	customIDJoin     = "arena:join"
	customIDComplete = "arena:complete"
)

// userMessage turns an arena error into a reply for the caller.
func userMessage(err error) string {
	switch {
	case errors.Is(err, arena.ErrNotJoined):
		return "You haven't joined the arena. Use `/arena join` first."
	case errors.Is(err, arena.ErrAlreadyJoined):
		return "You're already in the arena."
	case errors.Is(err, arena.ErrInsufficientParticipants):
		return "At least 2 participants are needed for that."
	case errors.Is(err, arena.ErrTeamsFormed):
		return "Teams are already formed for this week."
	case errors.Is(err, arena.ErrTeamsNotFormed):
		return "Teams haven't been formed yet. Vote on a team size with `/arena vote`."
	case errors.Is(err, arena.ErrAlreadyActive):
		return "The arena is already active."
	case errors.Is(err, arena.ErrInvalidTeamSize):
		return "Team size must be between 1 and the number of participants."
	case errors.Is(err, arena.ErrNoActiveChallenge):
		return "There is no active challenge right now."
	case errors.Is(err, arena.ErrChallengeExpired):
		return "This challenge has ended. A new one will start shortly."
	case errors.Is(err, arena.ErrAlreadyCompleted):
		return "You've already completed this challenge."
	case errors.Is(err, arena.ErrAccountNotLinked):
		return "Link your Trakt account first with `/connect`."
	case errors.Is(err, arena.ErrAuthExpired):
		return "Your Trakt authorization has expired. Reconnect with `/connect`."
	case errors.Is(err, arena.ErrAdminOnly):
		return "This command is for arena admins only."
	case errors.Is(err, arena.ErrStoreUnavailable):
		return "The arena is temporarily unavailable. Please try again in a moment."
	default:
		return "Something went wrong. Please try again in a few minutes."
	}
}

func reasonMessage(reason string) string {
	switch reason {
	case arena.ReasonNoEventsInWindow:
		return "No movies watched on Trakt since the challenge started."
	case arena.ReasonNoQualifyingEvent:
		return "None of the movies you watched since the challenge started match it."
	default:
		return reason
	}
}

// ruleSummary describes what a challenge asks for.
func ruleSummary(c arena.Challenge) string {
	switch c.RuleType {
	case arena.RuleGenre:
		return fmt.Sprintf("Watch a %s movie", c.RuleTarget)
	case arena.RuleDecade:
		return fmt.Sprintf("Watch a movie from the %s", c.RuleTarget)
	case arena.RuleRating:
		return fmt.Sprintf("Watch a movie rated %s or higher", c.RuleTarget)
	case arena.RuleRuntime:
		return fmt.Sprintf("Watch a movie under %s minutes", c.RuleTarget)
	case arena.RuleClassic:
		return fmt.Sprintf("Watch a movie released before %s", c.RuleTarget)
	case arena.RuleLanguage:
		if c.RuleTarget == arena.NonEnglish {
			return "Watch a non-English movie"
		}
		return fmt.Sprintf("Watch a movie in `%s`", c.RuleTarget)
	case arena.RuleObscure:
		return fmt.Sprintf("Watch a movie with fewer than %s votes", c.RuleTarget)
	default:
		return fmt.Sprintf("%s: %s", c.RuleType, c.RuleTarget)
	}
}

func challengeFields(c arena.Challenge) []*discordgo.MessageEmbedField {
	return []*discordgo.MessageEmbedField{
		{Name: "Goal", Value: ruleSummary(c), Inline: false},
		{Name: "Reward", Value: fmt.Sprintf("%d points", c.RewardPoints), Inline: true},
		{Name: "Ends", Value: fmt.Sprintf("<t:%d:R>", c.EndTime), Inline: true},
	}
}

func statusEmbed(st arena.Status, botName string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s Arena", botName),
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Phase", Value: string(st.Phase), Inline: true},
			{Name: "Participants", Value: fmt.Sprint(st.Participants), Inline: true},
			{Name: "Teams", Value: fmt.Sprint(st.Teams), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Week started " + st.WeekStart.UTC().Format("Mon Jan 2 15:04 MST"),
		},
	}

	switch st.Phase {
	case arena.PhaseOpen, arena.PhaseVoting:
		embed.Description = "Join with `/arena join`, then vote on a team size with `/arena vote`."
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Team size votes",
			Value: fmt.Sprintf("%d / %d", st.SizeVotes, st.SizeVotesNeeded),
		})
	}
	if st.Teams > 0 && !st.Active {
		embed.Description = "Teams are set. Vote to begin with `/arena start`."
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Start votes",
			Value: fmt.Sprintf("%d / %d", st.StartVotes, st.StartVotesNeeded),
		})
	}
	if st.Challenge != nil {
		embed.Description = fmt.Sprintf("**%s**\n%s", st.Challenge.Name, st.Challenge.Description)
		embed.Fields = append(embed.Fields, challengeFields(*st.Challenge)...)
	}
	return embed
}

// statusComponents are the buttons shown under the status embed.
func statusComponents(st arena.Status) []discordgo.MessageComponent {
	buttons := []discordgo.MessageComponent{
		discordgo.Button{Label: "Join", Style: discordgo.PrimaryButton, CustomID: customIDJoin},
	}
	if st.Challenge != nil {
		buttons = append(buttons, discordgo.Button{Label: "Complete", Style: discordgo.SuccessButton, CustomID: customIDComplete})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func teamsEmbed(teams []arena.TeamStanding) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "Arena Teams", Color: colorInfo}
	if len(teams) == 0 {
		embed.Description = "No teams yet."
		return embed
	}
	for _, t := range teams {
		members := "(empty)"
		if len(t.Members) > 0 {
			members = strings.Join(t.Members, ", ")
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s (%d pts)", t.Name, t.Points),
			Value: members,
		})
	}
	return embed
}

func leaderboardEmbed(board []arena.Participant) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "Arena Leaderboard", Color: colorInfo}
	if len(board) == 0 {
		embed.Description = "Nobody has joined yet."
		return embed
	}

	var sb strings.Builder
	for i, p := range board {
		sb.WriteString(fmt.Sprintf("**%d.** %s: %d pts, %d won", i+1, p.DisplayName, p.Points, p.ChallengesWon))
		if p.Team != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", p.Team))
		}
		sb.WriteString("\n")
	}
	embed.Description = sb.String()
	return embed
}

func completionEmbed(out arena.Completion) *discordgo.MessageEmbed {
	if !out.Awarded {
		return &discordgo.MessageEmbed{
			Title:       "Not yet!",
			Description: reasonMessage(out.Verdict.Reason),
			Color:       colorWarning,
			Fields:      challengeFields(out.Challenge),
		}
	}

	ev := out.Verdict.Evidence
	title := ev.Title
	if ev.Metadata.Year != nil {
		title = fmt.Sprintf("%s (%d)", ev.Title, *ev.Metadata.Year)
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Challenge complete!",
		Description: fmt.Sprintf("**%s** counts for **%s**.", title, out.Challenge.Name),
		Color:       colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reward", Value: fmt.Sprintf("+%d points", out.Challenge.RewardPoints), Inline: true},
			{Name: "Total", Value: fmt.Sprintf("%d points", out.Points), Inline: true},
			{Name: "Watched", Value: fmt.Sprintf("<t:%d:R>", ev.WatchedAt.Unix()), Inline: true},
		},
	}
	if ev.Ref.Slug != "" {
		embed.URL = "https://trakt.tv/movies/" + ev.Ref.Slug
	}
	return embed
}

func challengeEmbed(title string, c arena.Challenge) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**%s**\n%s", c.Name, c.Description),
		Color:       colorSuccess,
		Fields:      challengeFields(c),
		Timestamp:   time.Unix(c.StartedAt, 0).UTC().Format(time.RFC3339),
	}
}

// tickEmbed announces a rotation or weekly reset. It returns nil for ticks
// that changed nothing worth announcing.
func tickEmbed(res arena.TickResult) *discordgo.MessageEmbed {
	switch {
	case res.Reset:
		return &discordgo.MessageEmbed{
			Title:       "A new arena week begins",
			Description: "Scores and teams have been reset. Join with `/arena join`.",
			Color:       colorReset,
			Timestamp:   res.At.UTC().Format(time.RFC3339),
		}
	case res.Rotated && res.Current != nil:
		embed := challengeEmbed("New challenge!", *res.Current)
		if res.Previous != nil {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: "Previous: " + res.Previous.Name}
		}
		return embed
	default:
		return nil
	}
}
