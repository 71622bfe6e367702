package services

// Level thresholds are cumulative XP required to *hold* a level.
// levelThresholds[i] is the threshold for level i+1, so level 1 starts at 0.
// Deltas grow monotonically (300, 500, 700, 1000, ...), and past the last
// tabulated level the closed-form tail below continues the curve without a
// regression at the boundary.
var levelThresholds = []int64{
	0,     // level 1
	300,   // level 2
	800,   // level 3
	1500,  // level 4
	2500,  // level 5
	4000,  // level 6
	6000,  // level 7
	8500,  // level 8
	11500, // level 9
	15000, // level 10
	19000, // level 11
	23500, // level 12
	28500, // level 13
	34000, // level 14
	40000, // level 15
	46500, // level 16
	53500, // level 17
	61000, // level 18
	69000, // level 19
	77500, // level 20
}

const maxTabulatedLevel = 20

// LevelThreshold returns the cumulative XP required to hold a level.
// Beyond the table the curve is quadratic in the levels past the maximum,
// seeded at the last tabulated threshold: delta(k) = 9000 + 500*(k-1),
// which stays above the table's final delta of 8500.
func LevelThreshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level <= maxTabulatedLevel {
		return levelThresholds[level-1]
	}
	k := int64(level - maxTabulatedLevel)
	return levelThresholds[maxTabulatedLevel-1] + 9000*k + 250*k*(k-1)
}

// LevelFromXP returns the greatest level whose threshold is ≤ xp. Total for
// all inputs: negative or sub-threshold XP maps to level 1.
func LevelFromXP(xp int64) int {
	if xp < 0 {
		return 1
	}
	level := 1
	for LevelThreshold(level+1) <= xp {
		level++
	}
	return level
}

// XPProgress resolves xp into (level, xp into the level, xp remaining to the
// next threshold). The table is unbounded above, so xpToNext is always
// strictly positive.
func XPProgress(xp int64) (level int, intoLevel int64, toNext int64) {
	level = LevelFromXP(xp)
	intoLevel = xp - LevelThreshold(level)
	toNext = LevelThreshold(level+1) - xp
	return level, intoLevel, toNext
}
