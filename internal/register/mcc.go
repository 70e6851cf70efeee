package register

// mobileCountryCodes maps country calling codes to the mobile country code
// sent with a registration request. Codes shared by several countries map to
// the most populous one.
var mobileCountryCodes = map[string]string{
	"1":   "310",
	"7":   "250",
	"20":  "602",
	"27":  "655",
	"30":  "202",
	"31":  "204",
	"32":  "206",
	"33":  "208",
	"34":  "214",
	"36":  "216",
	"39":  "222",
	"40":  "226",
	"41":  "228",
	"43":  "232",
	"44":  "234",
	"45":  "238",
	"46":  "240",
	"47":  "242",
	"48":  "260",
	"49":  "262",
	"51":  "716",
	"52":  "334",
	"53":  "368",
	"54":  "722",
	"55":  "724",
	"56":  "730",
	"57":  "732",
	"58":  "734",
	"60":  "502",
	"61":  "505",
	"62":  "510",
	"63":  "515",
	"64":  "530",
	"65":  "525",
	"66":  "520",
	"81":  "440",
	"82":  "450",
	"84":  "452",
	"86":  "460",
	"90":  "286",
	"91":  "404",
	"92":  "410",
	"93":  "412",
	"94":  "413",
	"98":  "432",
	"212": "604",
	"213": "603",
	"216": "605",
	"233": "620",
	"234": "621",
	"251": "636",
	"254": "639",
	"255": "640",
	"256": "641",
	"260": "645",
	"263": "648",
	"351": "268",
	"353": "272",
	"354": "274",
	"355": "276",
	"358": "244",
	"359": "284",
	"370": "246",
	"371": "247",
	"372": "248",
	"375": "257",
	"380": "255",
	"381": "220",
	"385": "219",
	"386": "293",
	"420": "230",
	"421": "231",
	"502": "704",
	"503": "706",
	"504": "708",
	"505": "710",
	"506": "712",
	"507": "714",
	"591": "736",
	"593": "740",
	"595": "744",
	"598": "748",
	"852": "454",
	"880": "470",
	"886": "466",
	"961": "415",
	"962": "416",
	"964": "418",
	"965": "419",
	"966": "420",
	"968": "422",
	"971": "424",
	"972": "425",
	"973": "426",
	"974": "427",
	"977": "429",
}

// MobileCountryCode returns the MCC for a country calling code.
func MobileCountryCode(countryCode string) (string, bool) {
	mcc, ok := mobileCountryCodes[countryCode]
	return mcc, ok
}
