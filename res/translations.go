package res

import "embed"

//go:embed translations
var Translations embed.FS

type TranslationInfo struct {
	Name                string
	DisplayName         string
	TranslationFileName string
}

// The first entry is the fallback locale.
var TranslationsInfo = []TranslationInfo{
	{Name: "en", DisplayName: "English", TranslationFileName: "en.json"},
	{Name: "si", DisplayName: "සිංහල", TranslationFileName: "si.json"},
}
