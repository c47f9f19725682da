package generation

import (
	"regexp"
	"strings"
)

var (
	cjkPattern   = regexp.MustCompile(`[\x{3040}-\x{30ff}\x{4e00}-\x{9fff}]`)
	latinPattern = regexp.MustCompile(`[A-Za-z]`)
)

// detectLanguage returns "ja" or "en". Japanese is the deployment default
// when the text carries no signal either way.
func detectLanguage(text string) string {
	if cjkPattern.MatchString(text) {
		return "ja"
	}
	if latinPattern.MatchString(text) {
		return "en"
	}
	return "ja"
}

func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, "user") {
			return messages[i].Content
		}
	}
	return ""
}

// buildFeatures computes the metadata attached to every candidate regardless
// of how it was produced.
func buildFeatures(text, style string, traits StyleTraits, language string) map[string]any {
	words := strings.Fields(text)
	return map[string]any{
		"length_chars":     len(text),
		"length_words":     len(words),
		"is_question":      strings.HasSuffix(strings.TrimSpace(text), "?"),
		"language":         language,
		"style_initiative": traits.Initiative,
		"style_risk":       traits.Risk,
		"style":            style,
	}
}

// fallbackStyles is the style order used when neither the request nor the
// catalog constrains styles.
var fallbackStyles = []string{"empathetic", "logical", "coach"}

type fallbackTemplate struct {
	en string
	ja string
}

// fallbackText renders a deterministic per-style reply so selection always
// receives a non-empty candidate set even when the model is unavailable.
func fallbackText(style, lastUser, language string) string {
	templates := map[string]fallbackTemplate{
		"empathetic": {
			en: "I hear how that feels: " + strings.TrimRight(truncate(lastUser, 120), ".") +
				". Would one small step today help you steady things?",
			ja: "気持ち、伝わってきました：" + strings.TrimRight(truncate(lastUser, 60), "。") +
				"。まず一歩、どんな行動が安心につながりそう？",
		},
		"logical": {
			en: "Let's map it quickly. Core issue: " + strings.TrimRight(truncate(lastUser, 80), ".") +
				". Next, pick one actionable constraint to test.",
			ja: "論点を整理しよう。焦点は" + strings.TrimRight(truncate(lastUser, 40), "。") +
				"。次に試せる制約をひとつ選ぼう。",
		},
		"coach": {
			en: "Picture the progress you want this week. What's one move you can commit to?",
			ja: "今週進めたい形は？ 直近でやれる一手を一緒に決めよう。",
		},
		"playful": {
			en: "If this were a game, your move would set the tone—want to try a tiny bold experiment?",
			ja: "ゲーム感覚でいこう！次の一手で雰囲気が決まるよ。小さな実験、試してみない？",
		},
		"concise_expert": {
			en: "Focus on the single lever with the biggest upside and schedule a quick review after acting.",
			ja: "一番リターンの高いレバーに絞って動こう。実行後すぐにセルフレビューを。",
		},
	}

	if language != "ja" && language != "en" {
		language = "ja"
	}
	tpl, ok := templates[style]
	if !ok {
		tpl = templates["empathetic"]
	}
	if language == "en" {
		return tpl.en
	}
	return tpl.ja
}

// truncate limits text to at most n runes.
func truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
