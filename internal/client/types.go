// Package client implements the two proprietary TCP handshakes this
// toolkit speaks as a protocol client: login-server auth (init, GameGuard,
// credentials, server list, play key) and game-server auth (protocol
// version, key packet, character auth, select/create, enter world).
package client

// ServerInfo is one entry of the login server's ServerList response.
type ServerInfo struct {
	ID         byte
	IP         string
	Port       uint32
	CurPlayers uint16
	MaxPlayers uint16
	Status     byte
}

func (s ServerInfo) Up() bool { return s.Status == 1 }

// CharacterSlot is a minimally-parsed entry from CharSelectInfo: enough to
// pick a slot and know whether an account has any characters at all. The
// per-character stride used to skip to the next name is a documented
// approximation (see DESIGN.md's Open Question decision).
type CharacterSlot struct {
	Slot int
	Name string
}

// charRecordStride is the heuristic number of bytes, past the decoded name,
// the original reference client skips to reach the next character record.
const charRecordStride = 200

// BaseStats holds the nine hard-coded starter-class stat blocks
// (race, STR, DEX, CON, INT, WIT, MEN) used by CharacterCreate.
type BaseStats struct {
	Race, STR, DEX, CON, INT, WIT, MEN int32
}

var starterClassStats = map[int32]BaseStats{
	0x00: {Race: 0, STR: 40, DEX: 30, CON: 43, INT: 21, WIT: 11, MEN: 25}, // Human Fighter
	0x0A: {Race: 0, STR: 22, DEX: 21, CON: 24, INT: 41, WIT: 20, MEN: 39}, // Human Mystic
	0x12: {Race: 1, STR: 36, DEX: 35, CON: 36, INT: 23, WIT: 14, MEN: 26}, // Elf Fighter
	0x19: {Race: 1, STR: 21, DEX: 24, CON: 25, INT: 37, WIT: 23, MEN: 37}, // Elf Mystic
	0x1F: {Race: 2, STR: 41, DEX: 30, CON: 32, INT: 25, WIT: 12, MEN: 26}, // Dark Elf Fighter
	0x26: {Race: 2, STR: 23, DEX: 24, CON: 23, INT: 44, WIT: 19, MEN: 33}, // Dark Elf Mystic
	0x2C: {Race: 3, STR: 40, DEX: 29, CON: 45, INT: 20, WIT: 10, MEN: 25}, // Orc Fighter
	0x31: {Race: 3, STR: 27, DEX: 24, CON: 31, INT: 31, WIT: 15, MEN: 38}, // Orc Mystic
	0x35: {Race: 4, STR: 39, DEX: 29, CON: 45, INT: 21, WIT: 10, MEN: 25}, // Dwarf Fighter
}

// defaultClassID is substituted when an unknown class_id is requested.
const defaultClassID = 0x00

func lookupBaseStats(classID int32) (BaseStats, int32) {
	if stats, ok := starterClassStats[classID]; ok {
		return stats, classID
	}
	return starterClassStats[defaultClassID], defaultClassID
}
