package message

import "dailyverse/internal/model"

type entry struct {
	title     string
	body      string
	scripture string
	reference string
}

var pools = map[model.ExperienceTier][]entry{
	model.TierBeginner: {
		{
			title:     "A fresh start today",
			body:      "Every morning is a new beginning. Take a quiet minute before the day gets loud.",
			scripture: "It is of the LORD's mercies that we are not consumed, because his compassions fail not. They are new every morning: great is thy faithfulness.",
			reference: "Lamentations 3:22-23",
		},
		{
			title:     "You are not alone",
			body:      "Whatever today holds, you do not have to carry it by yourself.",
			scripture: "Fear thou not; for I am with thee: be not dismayed; for I am thy God.",
			reference: "Isaiah 41:10",
		},
		{
			title:     "One small step",
			body:      "Growth starts small. Read one verse and let it stay with you today.",
			scripture: "Thy word is a lamp unto my feet, and a light unto my path.",
			reference: "Psalm 119:105",
		},
	},
	model.TierIntermediate: {
		{
			title:     "Rooted and growing",
			body:      "Consistency builds depth. Keep showing up, even on the ordinary days.",
			scripture: "And he shall be like a tree planted by the rivers of water, that bringeth forth his fruit in his season.",
			reference: "Psalm 1:3",
		},
		{
			title:     "Renew your mind",
			body:      "Notice one thought today that needs reshaping, and bring it into the light.",
			scripture: "Be not conformed to this world: but be ye transformed by the renewing of your mind.",
			reference: "Romans 12:2",
		},
		{
			title:     "Patience in the process",
			body:      "Seasons of waiting are still seasons of growth.",
			scripture: "Let us not be weary in well doing: for in due season we shall reap, if we faint not.",
			reference: "Galatians 6:9",
		},
	},
	model.TierAdvanced: {
		{
			title:     "Abide deeply",
			body:      "Fruitfulness flows from connection, not effort alone. Spend unhurried time today.",
			scripture: "I am the vine, ye are the branches: He that abideth in me, and I in him, the same bringeth forth much fruit.",
			reference: "John 15:5",
		},
		{
			title:     "Strength in weakness",
			body:      "Bring your limits honestly today; that is where grace does its best work.",
			scripture: "My grace is sufficient for thee: for my strength is made perfect in weakness.",
			reference: "2 Corinthians 12:9",
		},
		{
			title:     "Pour out",
			body:      "Look for one person you can encourage today with what you have received.",
			scripture: "Bear ye one another's burdens, and so fulfil the law of Christ.",
			reference: "Galatians 6:2",
		},
	},
}
