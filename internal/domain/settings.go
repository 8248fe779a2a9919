package domain

type Settings struct {
	Enable         bool   `json:"enable"`
	Opacity        int    `json:"opacity"`
	LowPerformance bool   `json:"lowPerformance"`
	StrictMatch    bool   `json:"strictMatch"`
	SzbhMethod     bool   `json:"szbhMethod"`
	UseNGList      bool   `json:"useNgList"`
	NGList         NGList `json:"ngList"`
	ShowChangelog  bool   `json:"showChangelog"`
}

func DefaultSettings() Settings {
	return Settings{
		Enable:         true,
		Opacity:        100,
		LowPerformance: false,
		StrictMatch:    false,
		SzbhMethod:     true,
		UseNGList:      false,
		ShowChangelog:  true,
	}
}

// SettingsPatch updates only the non-nil fields.
type SettingsPatch struct {
	Enable         *bool   `json:"enable,omitempty"`
	Opacity        *int    `json:"opacity,omitempty"`
	LowPerformance *bool   `json:"lowPerformance,omitempty"`
	StrictMatch    *bool   `json:"strictMatch,omitempty"`
	SzbhMethod     *bool   `json:"szbhMethod,omitempty"`
	UseNGList      *bool   `json:"useNgList,omitempty"`
	NGList         *NGList `json:"ngList,omitempty"`
	ShowChangelog  *bool   `json:"showChangelog,omitempty"`
}

func (s Settings) Apply(patch SettingsPatch) Settings {
	if patch.Enable != nil {
		s.Enable = *patch.Enable
	}
	if patch.Opacity != nil {
		s.Opacity = clampOpacity(*patch.Opacity)
	}
	if patch.LowPerformance != nil {
		s.LowPerformance = *patch.LowPerformance
	}
	if patch.StrictMatch != nil {
		s.StrictMatch = *patch.StrictMatch
	}
	if patch.SzbhMethod != nil {
		s.SzbhMethod = *patch.SzbhMethod
	}
	if patch.UseNGList != nil {
		s.UseNGList = *patch.UseNGList
	}
	if patch.NGList != nil {
		s.NGList = NGList{
			Words:   append([]string(nil), patch.NGList.Words...),
			UserIDs: append([]string(nil), patch.NGList.UserIDs...),
		}
	}
	if patch.ShowChangelog != nil {
		s.ShowChangelog = *patch.ShowChangelog
	}
	return s
}

// ResolveOptions maps settings onto the knobs of a pipeline run.
func (s Settings) ResolveOptions() ResolveOptions {
	return ResolveOptions{
		StrictMatch: s.StrictMatch,
		Fallback:    s.SzbhMethod,
		UseNGList:   s.UseNGList,
		NGList:      s.NGList,
	}
}

func clampOpacity(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
