package card

// Built-in card IDs. The usage ledger and the usage-count formula key on these.
const (
	TestPaper     = "test_paper"
	LinearAlgebra = "linear_algebra"
	Settlement    = "settlement"
	Exercise      = "exercise"
	Rest          = "rest"
	Meditation    = "meditation"
	Scratch       = "scratch"
	Taishan       = "taishan"
	Dismiss       = "dismiss"
)

const (
	suitHomework = "作业牌"
	suitPhysical = "体术牌"
)

// Builtin returns the standard card set with its deck composition.
func Builtin() []Card {
	return []Card{
		{
			ID: TestPaper, Name: "一套卷子", Suit: suitHomework,
			Category: OwnTurn, Tags: []Tag{TagCounter},
			Description:  "对一名玩家造成1点作业伤害，每回合限一次；也可用于抵消线性代数",
			PerTurnLimit: 1, Copies: 3,
			Effect: Effect{Kind: EffectAttack, Amount: 1, Formula: FormulaFixed},
		},
		{
			ID: LinearAlgebra, Name: "线性代数", Suit: suitHomework,
			Category: OwnTurn, Tags: []Tag{TagUndodgeable},
			Description: "目标需要弃掉一张'一套卷子'，否则受到1点作业伤害",
			Copies:      2,
			Effect:      Effect{Kind: EffectAttack, Amount: 1, Formula: FormulaFixed},
		},
		{
			ID: Settlement, Name: "清算时刻", Suit: suitHomework,
			Category:    OwnTurn,
			Description: "对一名玩家造成N点作业伤害，N为本回合使用过的'一套卷子'数量",
			Copies:      1,
			Effect:      Effect{Kind: EffectAttack, Formula: FormulaUsageCount, Source: TestPaper},
		},
		{
			ID: Exercise, Name: "运动", Suit: suitPhysical,
			Category: Ordinary, Description: "恢复1点san值", Copies: 2,
			Effect: Effect{Kind: EffectHeal, Amount: 1},
		},
		{
			ID: Rest, Name: "休息", Suit: suitPhysical,
			Category: Ordinary, Description: "恢复1点san值", Copies: 2,
			Effect: Effect{Kind: EffectHeal, Amount: 1},
		},
		{
			ID: Meditation, Name: "冥想", Suit: suitPhysical,
			Category: Ordinary, Description: "恢复1点san值", Copies: 2,
			Effect: Effect{Kind: EffectHeal, Amount: 1},
		},
		{
			ID: Scratch, Name: "挠痒", Suit: suitPhysical,
			Category: Ordinary, Description: "指定一名玩家，弃掉他的一张手牌", Copies: 1,
			Effect: Effect{Kind: EffectDiscard, Amount: 1},
		},
		{
			ID: Taishan, Name: "泰山压顶", Suit: suitPhysical,
			Category:    OwnTurn,
			Description: "对一名玩家造成N点伤害，N为当前san值的一半（至少1点）",
			Copies:      1,
			Effect:      Effect{Kind: EffectAttack, Formula: FormulaHalfVitality},
		},
		{
			ID: Dismiss, Name: "驳回", Suit: suitPhysical,
			Category: Dodge, Description: "闪避一次可闪避的攻击", Copies: 4,
		},
	}
}

// RegisterAll registers the built-in cards on c.
func RegisterAll(c *Catalog) {
	for _, def := range Builtin() {
		c.Register(def)
	}
}

// Default returns a catalog holding the built-in cards.
func Default() *Catalog {
	c := NewCatalog()
	RegisterAll(c)
	return c
}
