package carve

// Container magic signatures, a small closed set dispatched by direct
// 4-byte comparison rather than a trie or registry (per design notes: the
// signature set is fixed and small enough that a prefix table buys
// nothing).
var (
	sigXex2 = [4]byte{'X', 'E', 'X', '2'}
	sigCon  = [4]byte{'C', 'O', 'N', ' '}
	sigLive = [4]byte{'L', 'I', 'V', 'E'}
	sigPirs = [4]byte{'P', 'I', 'R', 'S'}
	sigBink = [4]byte{'B', 'I', 'K', 'i'}
)

// matchContainerMagic returns the Kind for a recognized 4-byte magic at
// the start of b, and true if one matched.
func matchContainerMagic(b [4]byte) (Kind, bool) {
	switch b {
	case sigXex2:
		return KindXex, true
	case sigCon, sigLive, sigPirs:
		return KindStfs, true
	case sigBink:
		return KindBink, true
	}
	return 0, false
}

// rejectedTrailingByte filters false positives embedded in plain text or
// filesystem paths: a magic immediately followed by a space or '.' is not
// a genuine container header.
func rejectedTrailingByte(b byte) bool {
	return b == 0x20 || b == 0x2E
}
