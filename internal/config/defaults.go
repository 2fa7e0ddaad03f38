package config

import "time"

// Skill ids.
const (
	SkillClickPower     = "click_power"
	SkillAnalysis       = "analysis"
	SkillExtractionTech = "extraction_tech"
	SkillNegotiation    = "negotiation"
)

// XP sources.
const (
	XPClick       = "click"
	XPLandBuy     = "land_purchase"
	XPRigInstall  = "rig_install"
	XPOilSale     = "oil_sale"
	XPAchievement = "achievement"
	XPAnalysis    = "analysis"
)

// Bonus targets.
const (
	TargetClick        = "click"
	TargetLandPrice    = "land_price"
	TargetExtraction   = "extraction"
	TargetGlobalIncome = "global_income"
	TargetAnalysisCost = "analysis_cost"
)

// Default returns the built-in balance tables.
func Default() *Config {
	return &Config{
		Land: Land{
			BatchSize: 6,
			PriceCategories: []Category{
				{Name: "cheap", Weight: 0.60, Min: 500, Max: 1500},
				{Name: "standard", Weight: 0.25, Min: 1500, Max: 4000},
				{Name: "expensive", Weight: 0.12, Min: 4000, Max: 10000},
				{Name: "premium", Weight: 0.03, Min: 10000, Max: 25000},
			},
			OilCategories: []Category{
				{Name: "poor", Weight: 0.60, Min: 500, Max: 2000, DailyDecay: 0.020},
				{Name: "average", Weight: 0.25, Min: 2000, Max: 6000, DailyDecay: 0.015},
				{Name: "rich", Weight: 0.12, Min: 6000, Max: 15000, DailyDecay: 0.010},
				{Name: "gusher", Weight: 0.03, Min: 15000, Max: 40000, DailyDecay: 0.005},
			},
			MaxRigsPerParcel: 4,
			DeletionFee:      0.10,
			RigRefund:        0.50,
			RefreshMax:       3,
			RefreshInterval:  30 * time.Minute,
		},
		Rigs: []RigTier{
			{ID: "basic", Name: "Basic Pumpjack", Price: 200, ExtractionRate: 5, WasteRate: 0.50, Efficiency: 1.00},
			{ID: "advanced", Name: "Advanced Derrick", Price: 1000, ExtractionRate: 15, WasteRate: 0.30, Efficiency: 1.10},
			{ID: "industrial", Name: "Industrial Platform", Price: 5000, ExtractionRate: 40, WasteRate: 0.15, Efficiency: 1.25},
			{ID: "quantum", Name: "Quantum Extractor", Price: 25000, ExtractionRate: 100, WasteRate: 0.05, Efficiency: 1.50},
		},
		Market: Market{
			Companies: []Company{
				{
					ID: "petrox", Name: "PetroX", BasePrice: 10, MinDemand: 500, MaxDemand: 2000,
					Tiers:     []BuyTier{{50, 1.00}, {100, 1.05}, {250, 1.10}, {500, 1.20}},
					Contracts: defaultContracts(),
				},
				{
					ID: "globoil", Name: "GlobOil", BasePrice: 12, MinDemand: 300, MaxDemand: 1200,
					Tiers:     []BuyTier{{100, 1.00}, {200, 1.08}, {400, 1.15}},
					Contracts: defaultContracts(),
				},
				{
					ID: "refinco", Name: "RefinCo", BasePrice: 15, MinDemand: 100, MaxDemand: 600,
					Tiers:     []BuyTier{{25, 1.00}, {50, 1.04}, {100, 1.10}, {200, 1.18}},
					Contracts: defaultContracts(),
				},
			},
			PriceDriftInterval:  30 * time.Second,
			RequirementInterval: 10 * time.Minute,
			Cooldown:            5 * time.Minute,
			MaxPriceChange:      0.10,
		},
		Extraction: Extraction{
			TickInterval:        time.Second,
			UnitPrice:           10,
			DegradationInterval: time.Hour,
			OfflineThreshold:    time.Minute,
			OfflineCap:          12 * time.Hour,
			OfflineEfficiency:   0.8,
		},
		Progression: Progression{
			StartingBalance: 1000,
			BaseClick:       10,
			ClickPerLevel:   5,
			AnalysisCost:    100,
			AnalysisStep:    0.05,
			AnalysisFloor:   0.25,
			ExtractionStep:  0.10,
			NegotiationStep: 0.02,
			NegotiationMax:  0.40,
			LevelBase:       100,
			LevelGrowth:     1.5,
			XP: map[string]int64{
				XPClick:       1,
				XPLandBuy:     50,
				XPRigInstall:  25,
				XPOilSale:     5,
				XPAchievement: 100,
				XPAnalysis:    10,
			},
			Skills: []Skill{
				{ID: SkillClickPower, Name: "Click Power", BaseCost: 50, Multiplier: 1.5, MaxLevel: 50},
				{ID: SkillAnalysis, Name: "Geological Analysis", BaseCost: 100, Multiplier: 1.6, MaxLevel: 50},
				{ID: SkillExtractionTech, Name: "Extraction Tech", BaseCost: 500, Multiplier: 1.8, MaxLevel: 50},
				{ID: SkillNegotiation, Name: "Negotiation", BaseCost: 300, Multiplier: 1.7, MaxLevel: 50},
			},
			Achievements: []Achievement{
				{ID: "first_strike", Name: "First Strike", Metric: "clicks", Threshold: 1, Reward: Reward{TargetClick, "add", 1}},
				{ID: "hard_worker", Name: "Hard Worker", Metric: "clicks", Threshold: 1000, Reward: Reward{TargetClick, "mul", 1.10}},
				{ID: "landlord", Name: "Landlord", Metric: "parcels_bought", Threshold: 1, Reward: Reward{TargetLandPrice, "mul", 0.95}},
				{ID: "land_baron", Name: "Land Baron", Metric: "parcels_bought", Threshold: 10, Reward: Reward{TargetLandPrice, "mul", 0.90}},
				{ID: "driller", Name: "Driller", Metric: "rigs_installed", Threshold: 10, Reward: Reward{TargetExtraction, "mul", 1.10}},
				{ID: "analyst", Name: "Analyst", Metric: "analyses", Threshold: 10, Reward: Reward{TargetAnalysisCost, "mul", 0.90}},
				{ID: "trader", Name: "Trader", Metric: "oil_sold", Threshold: 10000, Reward: Reward{TargetGlobalIncome, "mul", 1.05}},
				{ID: "tycoon", Name: "Tycoon", Metric: "total_earned", Threshold: 1000000, Reward: Reward{TargetGlobalIncome, "mul", 1.10}},
			},
		},
		Timers: Timers{
			Autosave:       30 * time.Second,
			CooldownCheck:  time.Second,
			AllowanceCheck: time.Minute,
		},
	}
}

func defaultContracts() []ContractTier {
	return []ContractTier{
		{DemandMultiplier: 1.0, Cost: 0},
		{DemandMultiplier: 1.5, Cost: 5000},
		{DemandMultiplier: 2.0, Cost: 20000},
		{DemandMultiplier: 3.0, Cost: 100000},
	}
}
