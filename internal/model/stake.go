package model

import (
    "errors"
    "fmt"
    "strings"
)

// ErrInvalidStake is returned for blinds or buy-in limits a table cannot use.
var ErrInvalidStake = errors.New("model: invalid stake")

// Stake is the betting level of a table, fixed when the session is created.
//
// Fields:
//  Name       – preset name, or "custom".
//  SmallBlind – forced bet of the first seat.
//  BigBlind   – forced bet of the second seat, always twice the small blind.
//  MinBuyIn   – smallest wallet balance that may sit down.
//  MaxBuyIn   – largest stack a seat is dealt; 0 means uncapped.
type Stake struct {
    Name       string `json:"name"`
    SmallBlind int64  `json:"small_blind"`
    BigBlind   int64  `json:"big_blind"`
    MinBuyIn   int64  `json:"min_buy_in"`
    MaxBuyIn   int64  `json:"max_buy_in,omitempty"`
}

// StakeCustom names a stake built from explicit blinds.
const StakeCustom = "custom"

// stakePresets are the named levels; min buy-in is twenty big blinds.
var stakePresets = map[string]Stake{
    "micro":   {Name: "micro", SmallBlind: 5, BigBlind: 10, MinBuyIn: 200},
    "low":     {Name: "low", SmallBlind: 10, BigBlind: 20, MinBuyIn: 400},
    "medium":  {Name: "medium", SmallBlind: 25, BigBlind: 50, MinBuyIn: 1000},
    "high":    {Name: "high", SmallBlind: 50, BigBlind: 100, MinBuyIn: 2000},
    "premium": {Name: "premium", SmallBlind: 100, BigBlind: 200, MinBuyIn: 4000},
}

// PresetStake looks up a named stake, case-insensitively.
func PresetStake(name string) (Stake, error) {
    s, ok := stakePresets[strings.ToLower(strings.TrimSpace(name))]
    if !ok {
        return Stake{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidStake, name)
    }
    return s, nil
}

// CustomStake builds a stake from explicit blinds.  The buy-in cap is five
// times the minimum.
func CustomStake(smallBlind, bigBlind, minBuyIn int64) (Stake, error) {
    s := Stake{
        Name:       StakeCustom,
        SmallBlind: smallBlind,
        BigBlind:   bigBlind,
        MinBuyIn:   minBuyIn,
        MaxBuyIn:   minBuyIn * 5,
    }
    if err := s.Validate(); err != nil {
        return Stake{}, err
    }
    return s, nil
}

// Validate checks the blind ratio and the buy-in limits.
func (s Stake) Validate() error {
    switch {
    case s.SmallBlind <= 0:
        return fmt.Errorf("%w: small blind must be positive", ErrInvalidStake)
    case s.BigBlind != 2*s.SmallBlind:
        return fmt.Errorf("%w: big blind %d must be twice the small blind %d", ErrInvalidStake, s.BigBlind, s.SmallBlind)
    case s.MinBuyIn < 20*s.BigBlind:
        return fmt.Errorf("%w: min buy-in %d below 20 big blinds", ErrInvalidStake, s.MinBuyIn)
    case s.MaxBuyIn != 0 && s.MaxBuyIn < s.MinBuyIn:
        return fmt.Errorf("%w: max buy-in %d below min buy-in %d", ErrInvalidStake, s.MaxBuyIn, s.MinBuyIn)
    }
    return nil
}

// Covers reports whether a wallet balance may sit at this table.
func (s Stake) Covers(balance int64) bool {
    return balance >= s.MinBuyIn
}

// BuyIn is the stack dealt for a wallet balance.
func (s Stake) BuyIn(balance int64) int64 {
    if s.MaxBuyIn > 0 && balance > s.MaxBuyIn {
        return s.MaxBuyIn
    }
    return balance
}
