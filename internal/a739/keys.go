package a739

// KeyCLR is the keypad code for the CLR key.
const KeyCLR = 0x08

// Key describes one keypad code.
type Key struct {
	Code uint8
	Name string
	// Char is the character the key types into the scratchpad, zero for
	// keys that edit rather than type.
	Char byte
}

var keyTable = buildKeyTable()

func buildKeyTable() map[uint8]Key {
	t := map[uint8]Key{
		KeyCLR: {Code: KeyCLR, Name: "CLR"},
		' ':    {Code: ' ', Name: "SP", Char: ' '},
		'/':    {Code: '/', Name: "/", Char: '/'},
		'.':    {Code: '.', Name: ".", Char: '.'},
		'+':    {Code: '+', Name: "+", Char: '+'},
		'-':    {Code: '-', Name: "-", Char: '-'},
	}
	for c := byte('A'); c <= 'Z'; c++ {
		t[c] = Key{Code: c, Name: string(c), Char: c}
	}
	for c := byte('0'); c <= '9'; c++ {
		t[c] = Key{Code: c, Name: string(c), Char: c}
	}
	return t
}

// LookupKey returns the key for a keypad code.
func LookupKey(code uint8) (Key, bool) {
	k, ok := keyTable[code]
	return k, ok
}
