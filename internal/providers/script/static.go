package script

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reelforge/internal/domain"
)

// StaticGenerator renders a deterministic script from templates. It never
// fails for a non-empty topic and backs the remote generators.
type StaticGenerator struct{}

func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

type template struct {
	hook, body, outro string
}

var staticTemplates = map[string]map[string]template{
	"en": {
		domain.StyleTips:          {hook: "Want to master %s? Here is what actually works.", body: "First, start small and stay consistent. Second, cut one distraction today. Third, review what worked every evening.", outro: "Save this and try it tomorrow."},
		domain.StyleMotivation:    {hook: "%s starts with one decision.", body: "Nobody feels ready. You move first and the confidence follows. Every small win stacks on the last one.", outro: "Start today, not Monday."},
		domain.StyleEducational:   {hook: "Here is %s explained in under a minute.", body: "It comes down to three ideas: what it is, why it matters, and how you apply it. Learn those and the rest falls into place.", outro: "Follow for the next lesson."},
		domain.StyleEntertainment: {hook: "Nobody talks about the funny side of %s.", body: "You plan everything perfectly, and then real life shows up with snacks and a completely different plan.", outro: "Tag someone who needs this."},
		domain.StyleEngaging:      {hook: "Stop scrolling. This is about %s.", body: "Most people get it wrong in the first five minutes. Do the opposite of the crowd and watch what changes.", outro: "Comment if you want part two."},
	},
	"fr": {
		domain.StyleTips:          {hook: "Vous voulez maîtriser %s ? Voici ce qui marche vraiment.", body: "D'abord, commencez petit et restez régulier. Ensuite, supprimez une distraction aujourd'hui. Enfin, faites le bilan chaque soir.", outro: "Enregistrez cette vidéo et essayez dès demain."},
		domain.StyleMotivation:    {hook: "%s commence par une seule décision.", body: "Personne ne se sent prêt. On avance d'abord, la confiance suit. Chaque petite victoire s'ajoute à la précédente.", outro: "Commencez aujourd'hui, pas lundi."},
		domain.StyleEducational:   {hook: "%s expliqué en moins d'une minute.", body: "Tout tient en trois idées : ce que c'est, pourquoi c'est important, et comment l'appliquer.", outro: "Abonnez-vous pour la suite."},
		domain.StyleEntertainment: {hook: "Personne ne parle du côté drôle de %s.", body: "On prévoit tout parfaitement, puis la vraie vie arrive avec un plan complètement différent.", outro: "Identifiez quelqu'un qui en a besoin."},
		domain.StyleEngaging:      {hook: "Arrêtez de scroller. On parle de %s.", body: "La plupart des gens se trompent dès les cinq premières minutes. Faites l'inverse et regardez ce qui change.", outro: "Commentez si vous voulez la suite."},
	},
}

func (s *StaticGenerator) GenerateScript(ctx context.Context, req domain.ScriptRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	locale := "en"
	tag := language.English
	if languageName(req.Locale) == "French" {
		locale = "fr"
		tag = language.French
	}
	tpl, ok := staticTemplates[locale][req.Style]
	if !ok {
		tpl = staticTemplates[locale][domain.StyleTips]
	}
	if topic == strings.ToUpper(topic) && topic != strings.ToLower(topic) {
		topic = cases.Lower(tag).String(topic)
	}
	hook := fmt.Sprintf(tpl.hook, topic)
	if r, size := utf8.DecodeRuneInString(hook); r != utf8.RuneError {
		hook = string(unicode.ToUpper(r)) + hook[size:]
	}

	parts := []string{hook, tpl.body}
	if req.DurationBucket != domain.DurationShort {
		parts = append(parts, tpl.outro)
	}
	return strings.Join(parts, "\n\n"), nil
}

// Name identifies the provider in logs.
func (s *StaticGenerator) Name() string { return staticProviderName }
