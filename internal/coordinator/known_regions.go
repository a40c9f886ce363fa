package coordinator

// coord is a bare (regionX, regionY) pair, used only to seed the registry
// when no .l2d files exist yet to discover regions from.
type coord struct{ x, y int }

// knownRegions lists every Interlude-era geodata region. Used as the
// fallback seed set when DiscoverRegions finds no existing .l2d output —
// a brand-new scan has nowhere else to learn what regions exist.
var knownRegions = []coord{
	{11, 10}, {11, 11}, {11, 12}, {11, 13},
	{12, 10}, {12, 11}, {12, 12}, {12, 13}, {12, 14}, {12, 15},
	{13, 10}, {13, 11}, {13, 12}, {13, 13}, {13, 14}, {13, 15},
	{14, 10}, {14, 11}, {14, 12}, {14, 13}, {14, 14}, {14, 15},
	{15, 10}, {15, 11}, {15, 12}, {15, 13}, {15, 14}, {15, 15}, {15, 16}, {15, 17},
	{16, 10}, {16, 11}, {16, 12}, {16, 13}, {16, 14}, {16, 15}, {16, 16}, {16, 17},
	{17, 10}, {17, 11}, {17, 12}, {17, 13}, {17, 14}, {17, 15}, {17, 16}, {17, 17}, {17, 18},
	{18, 10}, {18, 11}, {18, 12}, {18, 13}, {18, 14}, {18, 15}, {18, 16}, {18, 17}, {18, 18}, {18, 19},
	{19, 10}, {19, 11}, {19, 12}, {19, 13}, {19, 14}, {19, 15}, {19, 16}, {19, 17}, {19, 18}, {19, 19},
	{20, 10}, {20, 11}, {20, 12}, {20, 13}, {20, 14}, {20, 15}, {20, 16}, {20, 17}, {20, 18}, {20, 19},
	{21, 10}, {21, 11}, {21, 12}, {21, 13}, {21, 14}, {21, 15}, {21, 16}, {21, 17}, {21, 18}, {21, 19},
	{22, 10}, {22, 11}, {22, 12}, {22, 13}, {22, 14}, {22, 15}, {22, 16}, {22, 17}, {22, 18}, {22, 19}, {22, 20},
	{23, 10}, {23, 11}, {23, 12}, {23, 13}, {23, 14}, {23, 15}, {23, 16}, {23, 17}, {23, 18}, {23, 19}, {23, 20},
	{24, 10}, {24, 11}, {24, 12}, {24, 13}, {24, 14}, {24, 15}, {24, 16}, {24, 17}, {24, 18}, {24, 19}, {24, 20},
	{25, 10}, {25, 11}, {25, 12}, {25, 13}, {25, 14}, {25, 15}, {25, 16}, {25, 17}, {25, 18}, {25, 19},
	{26, 10}, {26, 11}, {26, 12}, {26, 13}, {26, 14}, {26, 15}, {26, 16},
}
