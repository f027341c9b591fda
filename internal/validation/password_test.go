package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPassword(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"Valid", "SecurePass12!@", false},
		{"Exactly Min Length", "Abcdefghij1!", false},
		{"Exactly Max Length", "A" + strings.Repeat("b", 125) + "1!", false},
		{"Too Short", "Small1!", true},
		{"Too Long", "A" + strings.Repeat("b", 126) + "1!", true},
		{"No Upper", "securepass12!", true},
		{"No Lower", "SECUREPASS12!", true},
		{"No Digit", "SecurePass!!", true},
		{"No Special", "SecurePass123", true},
		{"Digits And Special Only", "1234567890!@", true},
		{"Unicode Characters", "ÅngstromPass12!", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Password(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEmailAndName(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Email("dana.derm@dermai.test"))
	assert.Error(t, Email("not-an-email"))
	assert.Error(t, Email(strings.Repeat("a", 250)+"@x.io"))

	assert.NoError(t, PersonName("Pat"))
	assert.Error(t, PersonName("   "))
	assert.Error(t, PersonName(strings.Repeat("n", 101)))
}

func TestMessageText(t *testing.T) {
	t.Parallel()
	text, err := MessageText("  hello there \n", 20)
	assert.NoError(t, err)
	assert.Equal(t, "hello there", text)

	text, err = MessageText("   ", 20)
	assert.NoError(t, err)
	assert.Empty(t, text)

	_, err = MessageText(strings.Repeat("é", 21), 20)
	assert.Error(t, err)

	_, err = MessageText("a\x00b", 20)
	assert.Error(t, err)

	_, err = MessageText(string([]byte{0xff, 0xfe}), 20)
	assert.Error(t, err)
}
