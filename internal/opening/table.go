package opening

// defaultEntries is the static opening taxonomy. Ranges follow the
// standard ECO volumes (A: flank openings, B/C: 1.e4, D/E: 1.d4 and
// Indian systems). This is a representative subset, not the full ECO
// volume — entries can be appended without touching lookup code.
var defaultEntries = []Entry{
	{
		Slug:     "sicilian_defense",
		Name:     "Sicilian Defense",
		Synonyms: []string{"sicilian", "sicilian defense", "sicilian defence"},
		ECORange: ECORange{"B20", "B99"},
	},
	{
		Slug:     "sicilian_sveshnikov",
		Name:     "Sicilian, Sveshnikov Variation",
		Synonyms: []string{"sveshnikov", "sicilian sveshnikov"},
		ECORange: ECORange{"B33", "B33"},
	},
	{
		Slug:     "french_defense",
		Name:     "French Defense",
		Synonyms: []string{"french", "french defense", "french defence"},
		ECORange: ECORange{"C00", "C19"},
	},
	{
		Slug:     "caro_kann_defense",
		Name:     "Caro-Kann Defense",
		Synonyms: []string{"caro-kann", "caro kann", "caro-kann defense"},
		ECORange: ECORange{"B10", "B19"},
	},
	{
		Slug:     "ruy_lopez",
		Name:     "Ruy Lopez",
		Synonyms: []string{"ruy lopez", "spanish opening", "spanish game"},
		ECORange: ECORange{"C60", "C99"},
	},
	{
		Slug:     "italian_game",
		Name:     "Italian Game",
		Synonyms: []string{"italian game", "italian opening", "giuoco piano"},
		ECORange: ECORange{"C50", "C54"},
	},
	{
		Slug:     "kings_gambit",
		Name:     "King's Gambit",
		Synonyms: []string{"king's gambit", "kings gambit"},
		ECORange: ECORange{"C30", "C39"},
	},
	{
		Slug:     "queens_gambit",
		Name:     "Queen's Gambit",
		Synonyms: []string{"queen's gambit", "queens gambit", "qgd", "qga"},
		ECORange: ECORange{"D06", "D69"},
	},
	{
		Slug:     "kings_indian_defense",
		Name:     "King's Indian Defense",
		Synonyms: []string{"king's indian", "kings indian", "king's indian defense", "kings indian defense", "kid"},
		ECORange: ECORange{"E60", "E99"},
	},
	{
		Slug:     "nimzo_indian_defense",
		Name:     "Nimzo-Indian Defense",
		Synonyms: []string{"nimzo-indian", "nimzo indian", "nimzo-indian defense"},
		ECORange: ECORange{"E20", "E59"},
	},
	{
		Slug:     "grunfeld_defense",
		Name:     "Grünfeld Defense",
		Synonyms: []string{"grunfeld", "grünfeld", "grunfeld defense"},
		ECORange: ECORange{"D70", "D99"},
	},
	{
		Slug:     "english_opening",
		Name:     "English Opening",
		Synonyms: []string{"english opening", "english"},
		ECORange: ECORange{"A10", "A39"},
	},
	{
		Slug:     "reti_opening",
		Name:     "Réti Opening",
		Synonyms: []string{"reti", "réti", "reti opening"},
		ECORange: ECORange{"A04", "A09"},
	},
	{
		Slug:     "pirc_defense",
		Name:     "Pirc Defense",
		Synonyms: []string{"pirc", "pirc defense"},
		ECORange: ECORange{"B07", "B09"},
	},
	{
		Slug:     "scandinavian_defense",
		Name:     "Scandinavian Defense",
		Synonyms: []string{"scandinavian", "scandinavian defense", "center counter"},
		ECORange: ECORange{"B01", "B01"},
	},
}
