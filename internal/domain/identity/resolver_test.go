package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

func chars(names ...string) []*entities.Character {
	out := make([]*entities.Character, 0, len(names))
	for i, n := range names {
		out = append(out, &entities.Character{ID: string(rune('a' + i)), Name: n})
	}
	return out
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		existing  []string
		wantName  string // empty means no match
	}{
		{name: "no existing characters", candidate: "John Smith", existing: nil},
		{name: "first name contained in full name", candidate: "John", existing: []string{"John Smith"}, wantName: "John Smith"},
		{name: "surname contained in full name", candidate: "Smith", existing: []string{"John Smith"}, wantName: "John Smith"},
		{name: "existing single token contained in candidate", candidate: "John Smith", existing: []string{"Smith"}, wantName: "Smith"},
		{name: "nickname plus surname", candidate: "Bill Parker", existing: []string{"William Parker"}, wantName: "William Parker"},
		{name: "different first names same surname", candidate: "Jane Doe", existing: []string{"John Doe"}},
		{name: "exact match case insensitive", candidate: "jane eyre", existing: []string{"Jane Eyre"}, wantName: "Jane Eyre"},
		{name: "exact match after honorific stripping", candidate: "Mr. Rochester", existing: []string{"Rochester"}, wantName: "Rochester"},
		{name: "initial plus surname", candidate: "J. Doe", existing: []string{"John Doe"}, wantName: "John Doe"},
		{name: "initial with wrong letter", candidate: "K. Doe", existing: []string{"John Doe"}},
		{name: "short surname is not trusted", candidate: "J. Li", existing: []string{"Jun Li"}},
		{name: "short single token is not trusted", candidate: "Al", existing: []string{"Al Capone"}},
		{name: "single nickname matches single canonical", candidate: "Bill", existing: []string{"William"}, wantName: "William"},
		{name: "full name matches earlier nickname", candidate: "William Parker", existing: []string{"Bill"}, wantName: "Bill"},
		{name: "nickname with different surnames", candidate: "Bill Parker", existing: []string{"William Turner"}},
		{name: "similar full first names are not initials", candidate: "Jon Doe", existing: []string{"John Doe"}},
		{name: "same first letter full names", candidate: "Jim Doe", existing: []string{"John Doe"}},
		{name: "single nickname matches full name", candidate: "Bill", existing: []string{"William Turner"}, wantName: "William Turner"},
		{name: "nicknames sharing a canonical name", candidate: "Billy", existing: []string{"Will"}, wantName: "Will"},
		{name: "prefix short form", candidate: "Alex", existing: []string{"Alexander"}, wantName: "Alexander"},
		{name: "prefix too short", candidate: "Al", existing: []string{"Alexander"}},
		{name: "blank candidate", candidate: "   ", existing: []string{"John"}},
		{name: "first hit in iteration order wins", candidate: "John", existing: []string{"John Smith", "John"}, wantName: "John Smith"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.candidate, chars(tt.existing...))
			if tt.wantName == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantName, got.Name)
		})
	}
}

func TestResolve_MatchesAliases(t *testing.T) {
	existing := []*entities.Character{
		{ID: "1", Name: "Aragorn", Aliases: []string{"Strider"}},
	}

	got := Resolve("strider", existing)
	require.NotNil(t, got)
	assert.Equal(t, "1", got.ID)
}

func TestResolve_SkipsNilEntries(t *testing.T) {
	existing := []*entities.Character{nil, {ID: "1", Name: "Jane Eyre"}}

	got := Resolve("Jane Eyre", existing)
	require.NotNil(t, got)
	assert.Equal(t, "1", got.ID)
}

func TestFirstNamesMatch(t *testing.T) {
	assert.True(t, FirstNamesMatch("bill", "william"))
	assert.True(t, FirstNamesMatch("william", "bill"))
	assert.True(t, FirstNamesMatch("chris", "christopher"))
	assert.True(t, FirstNamesMatch("ned", "teddy"))
	assert.False(t, FirstNamesMatch("jane", "john"))
	assert.False(t, FirstNamesMatch("", "john"))
	assert.False(t, FirstNamesMatch("jé", "jérôme"), "prefix length counts letters")
}

func TestNamesMatch(t *testing.T) {
	assert.True(t, NamesMatch("Bill Parker", "William Parker"))
	assert.False(t, NamesMatch("Jane Doe", "John Doe"))
}
