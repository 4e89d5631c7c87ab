// Package annotate derives render-ready aggregates from raw message
// records: reactions grouped by emoji and @mention resolution. Pure
// transforms, no store access.
package annotate

import (
	"regexp"
	"strings"

	"trellis/pkg/models"
)

// EveryoneToken is the reserved mention addressing all conversation members.
const EveryoneToken = "everyone"

var mentionRe = regexp.MustCompile(`@(\w+)`)

// ReactionGroup is one emoji bucket with the users who reacted, in reaction
// order.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
}

// Annotations is the derived view of a message.
type Annotations struct {
	// ReactionGroups keep first-seen emoji order; the UI shows the first two
	// and folds the rest into a "+N" overflow, so order is part of the
	// contract, not a display nicety.
	ReactionGroups   []ReactionGroup `json:"reaction_groups"`
	MentionedUsers   []string        `json:"mentioned_users"`
	MentionsEveryone bool            `json:"mentions_everyone"`
}

// Aggregate computes annotations for msg against the conversation's
// participant list. Mention tokens that resolve to no participant username
// stay literal text and are simply not reported.
func Aggregate(msg models.Message, participants []models.Participant) Annotations {
	var out Annotations

	byEmoji := map[string]int{}
	for _, r := range msg.Reactions {
		idx, ok := byEmoji[r.Emoji]
		if !ok {
			idx = len(out.ReactionGroups)
			byEmoji[r.Emoji] = idx
			out.ReactionGroups = append(out.ReactionGroups, ReactionGroup{Emoji: r.Emoji})
		}
		out.ReactionGroups[idx].Users = append(out.ReactionGroups[idx].Users, r.User)
	}

	byUsername := make(map[string]string, len(participants))
	for _, p := range participants {
		if p.Username != "" {
			byUsername[strings.ToLower(p.Username)] = p.ID
		}
	}

	seen := map[string]bool{}
	for _, m := range mentionRe.FindAllStringSubmatch(msg.Body, -1) {
		token := m[1]
		if strings.EqualFold(token, EveryoneToken) {
			out.MentionsEveryone = true
			continue
		}
		id, ok := byUsername[strings.ToLower(token)]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out.MentionedUsers = append(out.MentionedUsers, id)
	}
	return out
}
