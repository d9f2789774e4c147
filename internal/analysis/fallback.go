// Copyright 2025 Arogya Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package analysis

import "github.com/arogyaplus/arogya-assistant/internal/normalize"

// sampleConditions are shown when condition suggestions cannot be produced.
// Languages without a list use English.
var sampleConditions = map[Language][]Condition{
	English: {
		{
			ID:                  1,
			Name:                "Tension Headache",
			Probability:         85,
			Severity:            "low",
			Description:         "Most common type of headache, often caused by stress, poor posture, or eye strain.",
			DetailedDescription: "Tension headaches are characterized by a dull, aching sensation all over the head. They often feel like a tight band around the forehead or back of the head and neck. These headaches are typically caused by muscle contractions in the head and neck regions due to stress, anxiety, poor posture, or eye strain.",
			RecommendedAction:   "monitor",
			SpecialistType:      "General Physician",
			CommonSymptoms:      []string{"Dull aching head pain", "Sensation of tightness", "Tenderness on scalp", "Neck and shoulder muscle aches"},
			Recommendations:     []string{
				"Apply cold or warm compress to head or neck",
				"Practice relaxation techniques like deep breathing",
				"Maintain regular sleep schedule",
				"Stay hydrated and avoid skipping meals",
				"Consider over-the-counter pain relievers if needed",
			},
		},
		{
			ID:                  2,
			Name:                "Viral Fever",
			Probability:         72,
			Severity:            "medium",
			Description:         "Common viral infection causing fever, body aches, and general malaise.",
			DetailedDescription: "Viral fever is a common condition caused by various viral infections. It typically presents with elevated body temperature, body aches, fatigue, and sometimes respiratory symptoms. Most viral fevers are self-limiting and resolve within 3-7 days with proper rest and supportive care.",
			RecommendedAction:   "consult",
			SpecialistType:      "General Physician",
			CommonSymptoms:      []string{"Fever above 100°F", "Body aches", "Fatigue", "Headache", "Sometimes runny nose"},
			Recommendations:     []string{
				"Get adequate rest and sleep",
				"Drink plenty of fluids to stay hydrated",
				"Take paracetamol for fever and body aches",
				"Eat light, nutritious meals",
				"Consult doctor if fever persists beyond 3 days",
			},
		},
		{
			ID:                  3,
			Name:                "Migraine",
			Probability:         45,
			Severity:            "medium",
			Description:         "Severe headache disorder often accompanied by nausea and sensitivity to light.",
			DetailedDescription: "Migraine is a neurological condition characterized by intense, throbbing headaches that can last from hours to days. They often occur on one side of the head and may be accompanied by nausea, vomiting, and extreme sensitivity to light and sound. Migraines can significantly impact daily activities.",
			RecommendedAction:   "consult",
			SpecialistType:      "Neurologist",
			CommonSymptoms:      []string{"Severe throbbing headache", "Nausea or vomiting", "Light sensitivity", "Sound sensitivity", "Visual disturbances"},
			Recommendations:     []string{
				"Rest in a quiet, dark room",
				"Apply cold compress to forehead",
				"Stay hydrated",
				"Avoid known triggers",
				"Consider prescription migraine medications",
			},
		},
	},
	Hindi: {
		{
			ID:                  1,
			Name:                "तनाव सिरदर्द",
			Probability:         85,
			Severity:            "low",
			Description:         "सबसे आम प्रकार का सिरदर्द, अक्सर तनाव, गलत मुद्रा, या आंखों के तनाव के कारण होता है।",
			DetailedDescription: "तनाव सिरदर्द पूरे सिर में एक सुस्त, दर्द की संवेदना की विशेषता है। वे अक्सर माथे या सिर और गर्दन के पीछे एक तंग बैंड की तरह महसूस होते हैं। ये सिरदर्द आमतौर पर तनाव, चिंता, गलत मुद्रा, या आंखों के तनाव के कारण सिर और गर्दन के क्षेत्रों में मांसपेशियों के संकुचन के कारण होते हैं।",
			RecommendedAction:   "monitor",
			SpecialistType:      "सामान्य चिकित्सक",
			CommonSymptoms:      []string{"सुस्त सिर दर्द", "कसाव की संवेदना", "खोपड़ी में कोमलता", "गर्दन और कंधे की मांसपेशियों में दर्द"},
			Recommendations:     []string{
				"सिर या गर्दन पर ठंडा या गर्म सेक लगाएं",
				"गहरी सांस लेने जैसी विश्राम तकनीकों का अभ्यास करें",
				"नियमित नींद का समय बनाए रखें",
				"हाइड्रेटेड रहें और भोजन न छोड़ें",
				"यदि आवश्यक हो तो ओवर-द-काउंटर दर्द निवारक दवाओं पर विचार करें",
			},
		},
		{
			ID:                  2,
			Name:                "वायरल बुखार",
			Probability:         72,
			Severity:            "medium",
			Description:         "आम वायरल संक्रमण जो बुखार, शरीर में दर्द, और सामान्य अस्वस्थता का कारण बनता है।",
			DetailedDescription: "वायरल बुखार विभिन्न वायरल संक्रमणों के कारण होने वाली एक आम स्थिति है। यह आमतौर पर शरीर के तापमान में वृद्धि, शरीर में दर्द, थकान, और कभी-कभी श्वसन संबंधी लक्षणों के साथ प्रस्तुत होता है। अधिकांश वायरल बुखार स्व-सीमित होते हैं और उचित आराम और सहायक देखभाल के साथ 3-7 दिनों में ठीक हो जाते हैं।",
			RecommendedAction:   "consult",
			SpecialistType:      "सामान्य चिकित्सक",
			CommonSymptoms:      []string{"100°F से ऊपर बुखार", "शरीर में दर्द", "थकान", "सिरदर्द", "कभी-कभी नाक बहना"},
			Recommendations:     []string{
				"पर्याप्त आराम और नींद लें",
				"हाइड्रेटेड रहने के लिए भरपूर तरल पदार्थ पिएं",
				"बुखार और शरीर के दर्द के लिए पैरासिटामोल लें",
				"हल्का, पौष्टिक भोजन करें",
				"यदि बुखार 3 दिनों से अधिक बना रहे तो डॉक्टर से सलाह लें",
			},
		},
	},
	Tamil: {
		{
			ID:                  1,
			Name:                "மன அழுத்த தலைவலி",
			Probability:         85,
			Severity:            "low",
			Description:         "மிகவும் பொதுவான தலைவலி வகை, பெரும்பாலும் மன அழுத்தம், தவறான நிலை, அல்லது கண் சோர்வு காரணமாக ஏற்படுகிறது.",
			DetailedDescription: "மன அழுத்த தலைவலிகள் தலை முழுவதும் மந்தமான, வலி உணர்வால் வகைப்படுத்தப்படுகின்றன. அவை பெரும்பாலும் நெற்றி அல்லது தலை மற்றும் கழுத்தின் பின்புறத்தில் இறுக்கமான பட்டையைப் போல உணரப்படுகின்றன. இந்த தலைவலிகள் பொதுவாக மன அழுத்தம், பதட்டம், தவறான நிலை, அல்லது கண் சோர்வு காரணமாக தலை மற்றும் கழுத்து பகுதிகளில் தசை சுருக்கங்களால் ஏற்படுகின்றன.",
			RecommendedAction:   "monitor",
			SpecialistType:      "பொது மருத்துவர்",
			CommonSymptoms:      []string{"மந்தமான தலை வலி", "இறுக்கம் உணர்வு", "உச்சந்தலையில் மென்மை", "கழுத்து மற்றும் தோள்பட்டை தசை வலிகள்"},
			Recommendations:     []string{
				"தலை அல்லது கழுத்தில் குளிர் அல்லது வெப்பமான ஒத்தடம் கொடுங்கள்",
				"ஆழ்ந்த மூச்சு போன்ற தளர்வு நுட்பங்களை பயிற்சி செய்யுங்கள்",
				"வழக்கமான தூக்க அட்டவணையை பராமரிக்கவும்",
				"நீரேற்றத்துடன் இருங்கள் மற்றும் உணவைத் தவிர்க்காதீர்கள்",
				"தேவைப்பட்டால் மருந்தகத்தில் கிடைக்கும் வலி நிவாரணிகளை கருத்தில் கொள்ளுங்கள்",
			},
		},
	},
}

const sampleSymptomText = "Sample analysis: the symptoms you described are common and often mild. " +
	"Rest, stay hydrated and track how they change over the next few days. " +
	"Seek care promptly if you notice high fever, chest pain, difficulty breathing or confusion. " +
	"This is not a diagnosis. Please consult a healthcare professional for medical advice."

const sampleImageText = "Sample analysis: the image could not be analyzed right now. " +
	"Please share it with your doctor, who can examine it alongside your history. " +
	"This is for educational purposes only and does not replace professional medical diagnosis."

const sampleChatText = "I could not reach the health assistant just now. " +
	"General guidance: rest, stay hydrated and monitor your symptoms. " +
	"Please consult a healthcare provider for personalized advice."

func sampleReport() normalize.Report {
	return normalize.Report{
		Summary: ReportSummary{
			Title:    "Sample Report Analysis",
			Content:  "This is a sample interpretation shown because the report could not be analyzed right now.",
			Severity: normalize.ReportNormal,
			Icon:     "FileText",
		},
		Findings: []Finding{{
			Category:       "Sample",
			Icon:           "Search",
			Severity:       normalize.ReportNormal,
			Title:          "Analysis unavailable",
			Explanation:    "Your report values were not interpreted. Review them with your doctor.",
			Recommendation: "Consult with your healthcare provider",
			Expandable:     false,
		}},
		NextSteps:   []string{"Review with your doctor", "Try the analysis again later"},
		RiskFactors: []RiskFactor{},
	}
}

// SampleResult returns the bundled sample for kind. It is never empty.
// Chat samples extend history with the user's text and the sample reply.
func SampleResult(req Request) Result {
	switch req.Kind {
	case KindConditions:
		conditions, ok := sampleConditions[req.Language]
		if !ok {
			conditions = sampleConditions[English]
		}
		return &ConditionList{Conditions: append([]Condition(nil), conditions...)}
	case KindReport:
		return &ReportAnalysis{Report: sampleReport()}
	case KindImage:
		return &ImageAnalysis{Text: sampleImageText}
	case KindChat:
		return &ChatReply{
			Response: sampleChatText,
			History:  extendHistory(req.History, req.Text, sampleChatText),
		}
	default:
		return &SymptomAnalysis{Text: sampleSymptomText}
	}
}
