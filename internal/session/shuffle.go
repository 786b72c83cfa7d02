package session

import (
	"math/rand"

	"github.com/bloktest/session-backend/internal/model"
)

// shufflePaper randomizes the option order of every question in all three
// groups, independently and uniformly, once per fetch. Question order is
// left untouched; the original option ordering is discarded for the session.
func shufflePaper(p *model.QuizPaper) {
	shuffleGroup(&p.Main)
	shuffleGroup(&p.Addition)
	for i := range p.Mandatory {
		shuffleGroup(&p.Mandatory[i])
	}
}

func shuffleGroup(g *model.SubjectGroup) {
	for i := range g.Questions {
		opts := g.Questions[i].Options
		rand.Shuffle(len(opts), func(a, b int) {
			opts[a], opts[b] = opts[b], opts[a]
		})
	}
}

// flatten concatenates main, addition and mandatory questions into the
// stable linear navigation order.
func flatten(p *model.QuizPaper) []model.Question {
	total := len(p.Main.Questions) + len(p.Addition.Questions)
	for _, m := range p.Mandatory {
		total += len(m.Questions)
	}

	flat := make([]model.Question, 0, total)
	flat = append(flat, p.Main.Questions...)
	flat = append(flat, p.Addition.Questions...)
	for _, m := range p.Mandatory {
		flat = append(flat, m.Questions...)
	}
	return flat
}
