package identity

import (
	"strings"
	"unicode/utf8"
)

// nicknamesByName maps canonical first names to common short forms.
var nicknamesByName = map[string][]string{
	"abigail":     {"abby", "gail"},
	"albert":      {"al", "bert", "bertie"},
	"alexander":   {"alex", "alec", "sandy", "xander"},
	"alexandra":   {"alex", "sandra", "sasha", "lexi"},
	"alfred":      {"al", "alf", "alfie", "fred"},
	"andrew":      {"andy", "drew"},
	"anthony":     {"tony"},
	"arthur":      {"art", "artie"},
	"barbara":     {"barb", "babs"},
	"benjamin":    {"ben", "benny", "benji"},
	"catherine":   {"cathy", "kate", "katie", "kitty", "cat"},
	"charles":     {"charlie", "chuck", "chas"},
	"charlotte":   {"lottie", "charlie"},
	"christopher": {"chris", "kit", "topher"},
	"daniel":      {"dan", "danny"},
	"david":       {"dave", "davy"},
	"deborah":     {"deb", "debbie"},
	"dorothy":     {"dot", "dottie", "dolly"},
	"edward":      {"ed", "eddie", "ned", "ted", "teddy"},
	"eleanor":     {"ellie", "nell", "nora"},
	"elizabeth":   {"liz", "lizzie", "lizzy", "beth", "betsy", "betty", "eliza", "bess"},
	"frances":     {"fran", "fanny", "frankie"},
	"francis":     {"frank", "frankie"},
	"frederick":   {"fred", "freddie", "freddy"},
	"gabriel":     {"gabe"},
	"henry":       {"harry", "hank", "hal"},
	"isabella":    {"bella", "izzy", "isa"},
	"jacob":       {"jake"},
	"james":       {"jim", "jimmy", "jamie"},
	"jennifer":    {"jen", "jenny"},
	"john":        {"jack", "johnny"},
	"jonathan":    {"jon", "jonny"},
	"joseph":      {"joe", "joey"},
	"katherine":   {"kate", "katie", "kathy", "kat", "kitty"},
	"lawrence":    {"larry", "laurie"},
	"leonard":     {"leo", "len", "lenny"},
	"margaret":    {"maggie", "meg", "peggy", "madge", "daisy"},
	"mary":        {"molly", "polly", "mae"},
	"matthew":     {"matt", "matty"},
	"michael":     {"mike", "mikey", "mick", "mickey"},
	"nathaniel":   {"nate", "nat", "nathan"},
	"nicholas":    {"nick", "nicky", "nico"},
	"patricia":    {"pat", "patty", "tricia", "trish"},
	"patrick":     {"pat", "paddy"},
	"peter":       {"pete"},
	"rebecca":     {"becky", "becca"},
	"richard":     {"rick", "ricky", "dick", "rich"},
	"robert":      {"bob", "bobby", "rob", "robbie", "bert"},
	"ronald":      {"ron", "ronnie"},
	"samuel":      {"sam", "sammy"},
	"sarah":       {"sally", "sadie"},
	"stephen":     {"steve", "stevie"},
	"steven":      {"steve", "stevie"},
	"susan":       {"sue", "susie", "suzy"},
	"theodore":    {"theo", "ted", "teddy"},
	"thomas":      {"tom", "tommy"},
	"timothy":     {"tim", "timmy"},
	"victoria":    {"vicky", "tori"},
	"walter":      {"walt", "wally"},
	"william":     {"bill", "billy", "will", "willy", "liam"},
}

// canonicalByNickname is the reverse index of nicknamesByName.
var canonicalByNickname = func() map[string][]string {
	idx := make(map[string][]string)
	for canonical, nicks := range nicknamesByName {
		for _, n := range nicks {
			idx[n] = append(idx[n], canonical)
		}
	}
	return idx
}()

// minPrefixLen is the shortest first-name prefix accepted as a short form.
const minPrefixLen = 3

// FirstNamesMatch reports whether two lowercase first names plausibly
// denote the same person: equal, related through the nickname table, or
// one a prefix of the other of at least minPrefixLen characters.
func FirstNamesMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if isNicknameOf(a, b) || isNicknameOf(b, a) || shareCanonical(a, b) {
		return true
	}
	return isShortForm(a, b) || isShortForm(b, a)
}

func isNicknameOf(nick, canonical string) bool {
	for _, n := range nicknamesByName[canonical] {
		if n == nick {
			return true
		}
	}
	return false
}

func shareCanonical(a, b string) bool {
	for _, ca := range canonicalByNickname[a] {
		for _, cb := range canonicalByNickname[b] {
			if ca == cb {
				return true
			}
		}
	}
	return false
}

func isShortForm(short, long string) bool {
	n := utf8.RuneCountInString(short)
	return n >= minPrefixLen && n < utf8.RuneCountInString(long) && strings.HasPrefix(long, short)
}
