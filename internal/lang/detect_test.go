package lang

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Language
	}{
		{"empty", "", Other},
		{"whitespace only", "   \n\t  ", Other},
		{"chinese", "人工智能正在改变世界各地的新闻行业，编辑部开始大规模使用自动化工具。", Chinese},
		{"korean", "인공지능이 언론 산업을 빠르게 바꾸고 있습니다. 많은 기자들이 새로운 도구를 사용합니다.", Korean},
		{"japanese kana", "ニュースの業界では、じんこうちのうのどうにゅうがすすんでいます。", Japanese},
		{"russian", "Искусственный интеллект быстро меняет новостную индустрию по всему миру.", Russian},
		{"english", "The newsroom is changing fast, and this is one of the stories that explains why it matters for readers.", English},
		{"spanish", "La inteligencia artificial está cambiando la industria, pero los periodistas son más importantes que una máquina.", Spanish},
		{"french", "Les journalistes sont dans une période de transition, mais la technologie est aussi une chance pour les rédactions.", French},
		{"german", "Die Künstliche Intelligenz ist nicht nur eine Gefahr, sie ist auch eine Chance für die Redaktionen und die Leser.", German},
		{"portuguese", "A inteligência artificial não é uma ameaça para os jornalistas, mas uma ferramenta para o trabalho diário.", Portuguese},
		{"numbers and symbols", "1234567890 !@#$%^&*()", Other},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Detect(tc.text); got != tc.want {
				t.Fatalf("Detect(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog and this sentence is plainly English."
	first := Detect(text)
	for i := 0; i < 10; i++ {
		if got := Detect(text); got != first {
			t.Fatalf("detection changed between runs: %s vs %s", first, got)
		}
	}
}

func TestLatinScriptFlag(t *testing.T) {
	if !English.Latin() || !Portuguese.Latin() {
		t.Errorf("expected Latin languages to report Latin()")
	}
	if Chinese.Latin() || Russian.Latin() || Other.Latin() {
		t.Errorf("expected non-Latin languages to report !Latin()")
	}
}
