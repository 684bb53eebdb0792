package riot

import (
	"sort"
	"time"
)

// Summoner is an account identity as returned by the summoner endpoint.
type Summoner struct {
	ID            string `json:"id"`
	AccountID     string `json:"accountId"`
	PUUID         string `json:"puuid"`
	Name          string `json:"name"`
	ProfileIconID int    `json:"profileIconId"`
	RevisionDate  int64  `json:"revisionDate"` // ms since epoch
	SummonerLevel int64  `json:"summonerLevel"`
}

// Revised returns RevisionDate as a time.
func (s *Summoner) Revised() time.Time {
	return time.UnixMilli(s.RevisionDate)
}

// ChampionMastery is one champion's mastery record for a summoner.
type ChampionMastery struct {
	ChampionID                   int64  `json:"championId"`
	ChampionLevel                int    `json:"championLevel"`
	ChampionPoints               int    `json:"championPoints"`
	LastPlayTime                 int64  `json:"lastPlayTime"` // ms since epoch
	ChampionPointsSinceLastLevel int64  `json:"championPointsSinceLastLevel"`
	ChampionPointsUntilNextLevel int64  `json:"championPointsUntilNextLevel"`
	ChestGranted                 bool   `json:"chestGranted"`
	TokensEarned                 int    `json:"tokensEarned"`
	SummonerID                   string `json:"summonerId"`
}

// LastPlayed returns LastPlayTime as a time.
func (m ChampionMastery) LastPlayed() time.Time {
	return time.UnixMilli(m.LastPlayTime)
}

// SortByPoints returns a copy of masteries ordered by points, highest first.
// Ties keep their upstream order.
func SortByPoints(masteries []ChampionMastery) []ChampionMastery {
	sorted := make([]ChampionMastery, len(masteries))
	copy(sorted, masteries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ChampionPoints > sorted[j].ChampionPoints
	})
	return sorted
}
