package app

import (
	"sort"
	"strings"

	"quizlive-service/internal/domain"
)

// computeScores builds the raw ranking: score descending, ties broken by
// earliest join time, then nickname for determinism.
func computeScores(participants map[string]*domain.Participant) []domain.ScoreEntry {
	ordered := make([]*domain.Participant, 0, len(participants))
	for _, p := range participants {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		if !ordered[i].JoinedAt.Equal(ordered[j].JoinedAt) {
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		}
		return ordered[i].Nickname < ordered[j].Nickname
	})

	entries := make([]domain.ScoreEntry, 0, len(ordered))
	for i, p := range ordered {
		entries = append(entries, domain.ScoreEntry{
			ParticipantID: p.ID,
			Nickname:      p.Nickname,
			AvatarURL:     p.AvatarURL,
			Score:         p.Score,
			Rank:          i + 1,
		})
	}
	return entries
}

// computeCategoryRanking produces the weighted-sum ("SAW") ranking: per
// category, accuracy over answered questions times the authored weight,
// normalized by the weight sum and scaled to 0..100. Despite what parts of
// the product call it, this is a weighted linear aggregation, not a
// distance-to-ideal-point method. Returns nil when the quiz declares no
// categories.
func computeCategoryRanking(quiz domain.Quiz, participants map[string]*domain.Participant, records map[answerKey]*domain.AnswerRecord) []domain.CategoryRankEntry {
	if len(quiz.Categories) == 0 {
		return nil
	}

	questionCategory := make(map[string]string, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if q.Category != "" {
			questionCategory[q.ID] = q.Category
		}
	}

	var weightSum float64
	for _, c := range quiz.Categories {
		if c.Weight > 0 {
			weightSum += c.Weight
		}
	}

	entries := make([]domain.CategoryRankEntry, 0, len(participants))
	for _, p := range participants {
		correct := make(map[string]int)
		total := make(map[string]int)
		for key, rec := range records {
			if key.participantID != p.ID {
				continue
			}
			cat, ok := questionCategory[key.questionID]
			if !ok {
				continue
			}
			total[cat]++
			if rec.Correct {
				correct[cat]++
			}
		}

		var weighted float64
		perCategory := make([]domain.CategoryScore, 0, len(quiz.Categories))
		for _, c := range quiz.Categories {
			accuracy := 0.0
			if total[c.Name] > 0 {
				accuracy = float64(correct[c.Name]) / float64(total[c.Name])
			}
			perCategory = append(perCategory, domain.CategoryScore{
				Category: c.Name,
				Correct:  correct[c.Name],
				Total:    total[c.Name],
				Accuracy: accuracy * 100,
				Weight:   c.Weight,
			})
			if c.Weight > 0 {
				weighted += accuracy * c.Weight
			}
		}
		if weightSum > 0 {
			weighted = weighted / weightSum * 100
		}

		entries = append(entries, domain.CategoryRankEntry{
			ParticipantID: p.ID,
			Nickname:      p.Nickname,
			WeightedScore: weighted,
			RawScore:      p.Score,
			Categories:    perCategory,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].WeightedScore != entries[j].WeightedScore {
			return entries[i].WeightedScore > entries[j].WeightedScore
		}
		if entries[i].RawScore != entries[j].RawScore {
			return entries[i].RawScore > entries[j].RawScore
		}
		pi, pj := participants[entries[i].ParticipantID], participants[entries[j].ParticipantID]
		if pi != nil && pj != nil && !pi.JoinedAt.Equal(pj.JoinedAt) {
			return pi.JoinedAt.Before(pj.JoinedAt)
		}
		return entries[i].Nickname < entries[j].Nickname
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// sortRoster orders the participant list for broadcasts: connected first,
// then by join time.
func sortRoster(players []domain.Participant) {
	sort.Slice(players, func(i, j int) bool {
		if players[i].Connected != players[j].Connected {
			return players[i].Connected
		}
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return strings.ToLower(players[i].Nickname) < strings.ToLower(players[j].Nickname)
	})
}
