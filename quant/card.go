package quant

import (
	"fmt"
	"math/rand"
	"strings"

	"gopkg.in/yaml.v3"
)

// FormatTag normalizes a quantization tag for repository names: an i1-
// prefix survives with the rest uppercased, everything else is simply
// uppercased.
func FormatTag(tag string) string {
	if strings.HasPrefix(strings.ToLower(tag), "i1-") {
		_, rest, _ := strings.Cut(tag, "-")
		return "i1-" + strings.ToUpper(rest)
	}
	return strings.ToUpper(tag)
}

// cardMetadata is the YAML front matter of a published model card.
// Fields are declared in the order they should render.
type cardMetadata struct {
	BaseModel   string   `yaml:"base_model"`
	Language    []string `yaml:"language"`
	License     string   `yaml:"license"`
	QuantizedBy string   `yaml:"quantized_by"`
	Tags        []string `yaml:"tags"`
}

const cardAssetURL = "https://huggingface.co/spaces/SpongeEngine/README/resolve/main/"

// ModelCard renders the README.md for a published artifact: YAML front
// matter plus a blurb decorated with one image and one audio track from
// the Voyager Golden Record, chosen at random per card.
func ModelCard(modelID, tag string) (string, error) {
	formatted := FormatTag(tag)

	front, err := yaml.Marshal(cardMetadata{
		BaseModel:   modelID,
		Language:    []string{"en"},
		License:     "mit",
		QuantizedBy: "SpongeQuant",
		Tags:        []string{"SpongeQuant", formatted},
	})
	if err != nil {
		return "", err
	}

	image := cardImages[rand.Intn(len(cardImages))]
	audio := cardAudios[rand.Intn(len(cardAudios))]

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(front)
	sb.WriteString("---\n\n")

	fmt.Fprintf(&sb, "\nQuantized to `%s` using [SpongeQuant](https://github.com/SpongeEngine/SpongeQuant), the Oobabooga of LLM quantization. Chat & support at [Sponge Engine](https://discord.gg/azNmr2Gdgy).\n\n", formatted)

	fmt.Fprintf(&sb, "<figure>\n  <img src=\"%s%s\" alt=\"%s\">\n  <figcaption>%s</figcaption>\n</figure>\n\n",
		cardAssetURL, image.File, image.Caption, image.Caption)

	fmt.Fprintf(&sb, "<figure>\n  <audio controls>\n    <source src=\"%s%s\" type=\"audio/mp3\">\n    Your browser does not support the audio element.\n  </audio>\n  <figcaption>%s</figcaption>\n</figure>\n",
		cardAssetURL, audio.File, audio.Caption)

	return sb.String(), nil
}

type figure struct {
	File    string
	Caption string
}

// The Voyager Golden Record imagery hosted on the project space.
var cardImages = []figure{
	{"001.png", "1. Calibration circle"},
	{"002.png", "2. Solar location map"},
	{"003.png", "3. Mathematical definitions"},
	{"004.png", "4. Physical unit definitions"},
	{"005.png", "5. Solar system parameters"},
	{"006.png", "6. Solar system parameters"},
	{"007.png", "7. The Sun"},
	{"008.png", "8. Solar spectrum"},
	{"009.png", "9. Mercury"},
	{"010.png", "10. Mars"},
	{"011.png", "11. Jupiter"},
	{"012.png", "12. Earth"},
	{"013.png", "13. Egypt, Red Sea, Sinai Peninsula and the Nile"},
	{"014.png", "14. Chemical definitions"},
	{"015.png", "15. DNA Structure"},
	{"016.png", "16. DNA Structure magnified, light hit"},
	{"017.png", "17. Cells and cell division"},
	{"018.png", "18. Anatomy 1 (Skeleton front)"},
	{"019.png", "19. Anatomy 2 (Internal organs front)"},
	{"020.png", "20. Anatomy 3 (Skeleton and muscles back)"},
	{"021.png", "21. Anatomy 4 (Internal organs back)"},
	{"022.png", "22. Anatomy 5 (Ribcage)"},
	{"023.png", "23. Anatomy 6 (Muscles front)"},
	{"024.png", "24. Anatomy 7 (Heart, lungs, kidneys and main blood vessels back)"},
	{"025.png", "25. Anatomy 8 (Heart, lungs, kidneys and main blood vessels front)"},
	{"026.png", "26. Human sex organs"},
	{"027.png", "27. Diagram of conception"},
	{"028.png", "28. Conception"},
	{"029.png", "29. Fertilized ovum"},
	{"030.png", "30. Fetus diagram"},
	{"031.png", "31. Fetus"},
	{"032.png", "32. Diagram of male and female"},
	{"033.png", "33. Birth"},
	{"034.png", "34. Nursing mother"},
	{"035.png", "35. Father and daughter (Malaysia)"},
	{"036.png", "36. Group of children"},
	{"037.png", "37. Diagram of family ages"},
	{"038.png", "38. Family portrait"},
	{"039.png", "39. Diagram of continental drift"},
	{"040.png", "40. Structure of the Earth"},
	{"041.png", "41. Heron Island (Great Barrier Reef of Australia)"},
	{"042.png", "42. Seashore"},
	{"043.png", "43. Snake River and Grand Tetons"},
	{"044.png", "44. Sand dunes"},
	{"045.png", "45. Monument Valley"},
	{"046.png", "46. Forest scene with mushrooms"},
	{"047.png", "47. Leaf"},
	{"048.png", "48. Autumn Fallen leaves"},
	{"049.png", "49. Snowflakes over Sequoia"},
	{"050.png", "50. Tree with daffodils"},
	{"051.png", "51. Flying insect with flowers"},
	{"052.png", "52. Diagram of vertebrate evolution"},
	{"053.png", "53. Seashell (Xancidae)"},
	{"054.png", "54. Dolphins"},
	{"055.png", "55. School of fish"},
	{"056.png", "56. Tree toad"},
	{"057.png", "57. Crocodile"},
	{"058.png", "58. Eagle"},
	{"059.png", "59. Waterhole"},
	{"060.png", "60. Jane Goodall and chimps"},
	{"061.png", "61. Sketch of bushmen"},
	{"062.png", "62. Bushmen hunters"},
	{"063.png", "63. Man from Guatemala"},
	{"064.png", "64. Dancer from Bali"},
	{"065.png", "65. Andean girls"},
	{"066.png", "66. Thailand master craftsman"},
	{"067.png", "67. Elephant"},
	{"068.png", "68. Old man with beard and glasses (Turkey)"},
	{"069.png", "69. Old man with dog and flowers"},
	{"070.png", "70. Mountain climber"},
	{"071.png", "71. Gymnast"},
	{"072.png", "72. Sprinters (Valeriy Borzov of the U.S.S.R. in lead)"},
	{"073.png", "73. Schoolroom"},
	{"074.png", "74. Children with globe"},
	{"075.png", "75. Cotton harvest"},
	{"076.png", "76. Grape picker"},
	{"077.png", "77. Supermarket"},
	{"078.png", "78. Underwater scene with diver and fish"},
	{"079.png", "79. Fishing boat with nets"},
	{"080.png", "80. Cooking fish"},
	{"081.png", "81. Chinese dinner party"},
	{"082.png", "82. Demonstration of licking, eating and drinking"},
	{"083.png", "83. Great Wall of China"},
	{"084.png", "84. House construction (African)"},
	{"085.png", "85. Construction scene (Amish country)"},
	{"086.png", "86. House (Africa)"},
	{"087.png", "87. House (New England)"},
	{"088.png", "88. Modern house (Cloudcroft, New Mexico)"},
	{"089.png", "89. House interior with artist and fire"},
	{"090.png", "90. Taj Mahal"},
	{"091.png", "91. English city (Oxford)"},
	{"092.png", "92. Boston"},
	{"093.png", "93. UN Building Day"},
	{"094.png", "94. UN Building Night"},
	{"095.png", "95. Sydney Opera House"},
	{"096.png", "96. Artisan with drill"},
	{"097.png", "97. Factory interior"},
	{"098.png", "98. Museum"},
	{"099.png", "99. X-ray of hand"},
	{"100.png", "100. Woman with microscope"},
	{"101.png", "101. Street scene, Asia (Pakistan)"},
	{"102.png", "102. Rush hour traffic, India"},
	{"103.png", "103. Modern highway (Ithaca, NY)"},
	{"104.png", "104. Golden Gate Bridge"},
	{"105.png", "105. Train"},
	{"106.png", "106. Airplane in flight"},
	{"107.png", "107. Airport (Toronto)"},
	{"108.png", "108. Antarctic Expedition"},
	{"109.png", "109. Radio telescope (Westerbork, Netherlands)"},
	{"110.png", "110. Radio telescope (Arecibo)"},
	{"111.png", "111. Page of book (Newton, System of the World)"},
	{"112.png", "112. Astronaut in space"},
	{"113.png", "113. Titan Centaur launch"},
	{"114.png", "114. Sunset with birds"},
	{"115.png", "115. String Quartet (Quartetto Italiano)"},
	{"116.png", "116. Violin with music score (Cavatina)"},
	{"117.png", "117. Statement 1/2"},
	{"118.png", "118. Statement 2/2"},
	{"119.png", "119. Credits 1/4"},
	{"120.png", "120. Credits 2/4"},
	{"121.png", "121. Credits 3/4"},
	{"122.png", "122. Credits 4/4"},
}

// The Golden Record audio program.
var cardAudios = []figure{
	{"001.mp3", "1. Greetings from the Secretary-General of the UN – Kurt Waldheim"},
	{"002.mp3", "2. Greetings In 55 Languages"},
	{"003.mp3", "3. United Nations Greetings / Whale Songs"},
	{"004.mp3", "4. The Sounds Of Earth"},
	{"005.mp3", "5. Brandenburg Concerto No. 2 in F Major, BWV 1047: I. Allegro – Munich Bach Orchestra / Karl Richter (Johann Sebastian Bach)"},
	{"006.mp3", "6. Ketawang: Puspåwårnå (Kinds of Flowers) – Pura Paku Alaman Palace Orchestra / K.R.T. Wasitodipuro"},
	{"007.mp3", "7. Cengunmé – Mahi musicians"},
	{"008.mp3", "8. Alima Song – Mbuti of the Ituri Rainforest"},
	{"009.mp3", "9. Barnumbirr & Moikoi Song – Tom Djawa, Mudpo and Waliparu"},
	{"010.mp3", "10. El Cascabel – Antonio Maciel and Los Aguilillas with Mariachi México de Pepe Villa / Rafael Carrión (Lorenzo Barcelata)"},
	{"011.mp3", "11. Johnny B. Goode – Chuck Berry"},
	{"012.mp3", "12. Mariuamangɨ – Pranis Pandang and Kumbui of the Nyaura Clan"},
	{"013.mp3", "13. Sokaku-Reibo (Depicting the Cranes in Their Nest) – Goro Yamaguchi"},
	{"014.mp3", "14. Partita for Violin Solo No. 3 in E Major, BWV 1006: III. Gavotte en Rondeau – Arthur Grumiaux (Johann Sebastian Bach)"},
	{"015.mp3", "15. The Magic Flute (Die Zauberflöte), K. 620, Act II: Hell’s Vengeance Boils in My Heart – Bavarian State Opera Orchestra and Chorus / Wolfgang Sawallisch (Wolfgang Amadeus Mozart)"},
	{"016.mp3", "16. Chakrulo – Georgian State Merited Ensemble of Folk Song and Dance / Anzor Kavsadze"},
	{"017.mp3", "17. Roncadoras and Drums – Musicians from Ancash"},
	{"018.mp3", "18. Melancholy Blues – Louis Armstrong and His Hot Seven (Marty Bloom / Walter Melrose)"},
	{"019.mp3", "19. Muğam – Kamil Jalilov"},
	{"020.mp3", "20. The Rite of Spring (Le Sacre du Printemps), Part II—The Sacrifice: VI. Sacrificial Dance (The Chosen One) – Columbia Symphony Orchestra / Igor Stravinsky"},
	{"021.mp3", "21. The Well-Tempered Clavier, Book II: Prelude & Fugue No. 1 in C Major, BWV 870 – Glenn Gould (Johann Sebastian Bach)"},
	{"022.mp3", "22. Symphony No. 5 in C Minor, Opus 67: I. Allegro Con Brio – Philharmonia Orchestra / Otto Klemperer (Ludwig Van Beethoven)"},
	{"023.mp3", "23. Izlel e Delyu Haydutin – Valya Balkanska"},
	{"024.mp3", "24. Navajo Night Chant, Yeibichai Dance – Ambrose Roan Horse, Chester Roan and Tom Roan"},
	{"025.mp3", "25. The Fairie Round – Early Music Consort of London / David Munrow (Anthony Holborne)"},
	{"026.mp3", "26. Naranaratana Kookokoo (The Cry of the Megapode Bird) – Maniasinimae and Taumaetarau Chieftain Tribe of Oloha and Palasu'u Village Community"},
	{"027.mp3", "27. Wedding Song – Young girl of Huancavelica"},
	{"028.mp3", "28. Liu Shui (Flowing Streams) – Guan Pinghu"},
	{"029.mp3", "29. Bhairavi: Jaat Kahan Ho – Kesarbai Kerkar"},
	{"030.mp3", "30. Dark Was the Night, Cold Was the Ground – Blind Willie Johnson"},
	{"031.mp3", "31. String Quartet No. 13 in B-flat Major, Opus 130: V. Cavatina – Budapest String Quartet (Ludwig Van Beethoven)"},
}
